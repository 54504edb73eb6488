package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/frankfrisby/backbone/pkg/logging"
)

// RequestIDMiddleware assigns a request ID, honoring an inbound X-Request-ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// LoggingMiddleware logs each request with latency and status
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(c),
		)
	}
}

// RecoveryMiddleware converts panics into 500 responses
func RecoveryMiddleware(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Handler panicked",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", requestID(c),
				)
				c.AbortWithStatusJSON(500, APIResponse{
					Success:   false,
					Error:     &APIError{Code: "INTERNAL_ERROR", Message: "internal server error"},
					RequestID: requestID(c),
					Timestamp: time.Now(),
				})
			}
		}()
		c.Next()
	}
}
