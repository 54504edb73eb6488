package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frankfrisby/backbone/pkg/errors"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error payload
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// CreatedResponse sends a 201 response
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// ErrorResponseFromError maps application errors to HTTP responses
func ErrorResponseFromError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	apiErr := &APIError{
		Code:    errors.GetCode(err),
		Message: err.Error(),
	}

	if appErr, ok := err.(*errors.AppError); ok {
		apiErr.Message = appErr.Message
		apiErr.Details = appErr.Details

		switch appErr.Type {
		case errors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case errors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case errors.ErrorTypeConflict:
			status = http.StatusConflict
		case errors.ErrorTypeTimeout:
			status = http.StatusGatewayTimeout
		case errors.ErrorTypeExternal:
			status = http.StatusBadGateway
		}
	}

	c.JSON(status, APIResponse{
		Success:   false,
		Error:     apiErr,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
