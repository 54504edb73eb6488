package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    Status         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  []ServiceState `json:"services"`
}

// Handler returns a Gin handler reporting aggregate system health
func (mon *Monitor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    mon.SystemHealth(),
			Timestamp: time.Now(),
			Services:  mon.AllServices(),
		}

		statusCode := http.StatusOK
		switch response.Status {
		case StatusUnhealthy:
			statusCode = http.StatusServiceUnavailable
		case StatusDegraded:
			statusCode = http.StatusPartialContent
		}

		c.JSON(statusCode, response)
	}
}

// LivenessHandler returns a simple liveness check handler
func (mon *Monitor) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	}
}
