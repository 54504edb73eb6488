package api

import (
	"github.com/gin-gonic/gin"

	"github.com/frankfrisby/backbone/internal/fallback"
)

// ModelHandler exposes the provider fallback manager over HTTP
type ModelHandler struct {
	manager *fallback.Manager
}

// NewModelHandler creates a new model handler
func NewModelHandler(manager *fallback.Manager) *ModelHandler {
	return &ModelHandler{manager: manager}
}

// ListModels returns available providers and the current selection
func (h *ModelHandler) ListModels(c *gin.Context) {
	current, ok := h.manager.Current()
	resp := gin.H{
		"available": h.manager.AvailableModels(),
	}
	if ok {
		resp["current"] = current
	}
	SuccessResponse(c, resp)
}

// SwitchModel manually overrides the provider selection
func (h *ModelHandler) SwitchModel(c *gin.Context) {
	if err := h.manager.SwitchTo(c.Param("id")); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	current, _ := h.manager.Current()
	SuccessResponse(c, current)
}

// ResetModels clears all provider failure state
func (h *ModelHandler) ResetModels(c *gin.Context) {
	h.manager.Reset()
	SuccessResponse(c, gin.H{"available": h.manager.AvailableModels()})
}
