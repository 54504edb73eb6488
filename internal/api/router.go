package api

import (
	"github.com/gin-gonic/gin"

	"github.com/frankfrisby/backbone/internal/fallback"
	"github.com/frankfrisby/backbone/internal/taskqueue"
	"github.com/frankfrisby/backbone/pkg/config"
	"github.com/frankfrisby/backbone/pkg/health"
	"github.com/frankfrisby/backbone/pkg/logging"
	"github.com/frankfrisby/backbone/pkg/metrics"
)

// NewRouter creates and configures the API router
func NewRouter(cfg *config.Config, queue *taskqueue.Queue, monitor *health.Monitor, manager *fallback.Manager, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))

	router.GET("/health", monitor.Handler())
	router.GET("/health/live", monitor.LivenessHandler())
	if m != nil && m.Enabled() {
		router.GET("/metrics", m.Handler())
	}

	taskHandler := NewTaskHandler(queue)
	modelHandler := NewModelHandler(manager)

	v1 := router.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/history", taskHandler.ListHistory)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.POST("/:id/complete", taskHandler.CompleteTask)
			tasks.POST("/:id/fail", taskHandler.FailTask)
			tasks.POST("/:id/block", taskHandler.BlockTask)
			tasks.POST("/:id/unblock", taskHandler.UnblockTask)
		}

		models := v1.Group("/models")
		{
			models.GET("", modelHandler.ListModels)
			models.POST("/:id/switch", modelHandler.SwitchModel)
			models.POST("/reset", modelHandler.ResetModels)
		}

		v1.GET("/services", func(c *gin.Context) {
			SuccessResponse(c, monitor.AllServices())
		})
	}

	return router
}
