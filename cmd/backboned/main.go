package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/frankfrisby/backbone/internal/api"
	"github.com/frankfrisby/backbone/internal/fallback"
	"github.com/frankfrisby/backbone/internal/taskqueue"
	"github.com/frankfrisby/backbone/pkg/config"
	"github.com/frankfrisby/backbone/pkg/events"
	"github.com/frankfrisby/backbone/pkg/health"
	"github.com/frankfrisby/backbone/pkg/logging"
	"github.com/frankfrisby/backbone/pkg/metrics"
	"github.com/frankfrisby/backbone/pkg/resilience"
)

var version = "dev"

// defaultProviders is the built-in provider ranking; credentials come from
// the environment, never from configuration files.
var defaultProviders = []fallback.ModelDescriptor{
	{ID: "claude", Name: "Claude", Priority: 1, AuthEnv: "ANTHROPIC_API_KEY", Models: []string{"claude-sonnet", "claude-haiku"}},
	{ID: "openai", Name: "OpenAI", Priority: 2, AuthEnv: "OPENAI_API_KEY", Models: []string{"gpt-4o", "gpt-4o-mini"}},
	{ID: "grok", Name: "Grok", Priority: 3, AuthEnv: "XAI_API_KEY", Models: []string{"grok-2"}},
}

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "backbone",
		Version:     version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(&metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Enabled:   cfg.Metrics.Enabled,
	})

	bus := events.NewBus(logger)
	bus.Subscribe(events.NewLoggingHandler(logger))

	queue := taskqueue.NewQueue(taskqueue.Config{
		PersistPath:  cfg.Queue.PersistPath,
		HistoryLimit: cfg.Queue.HistoryLimit,
	}, bus, m, logger)
	if err := queue.Load(); err != nil {
		logger.Warn("Queue restore failed", "error", err)
	}

	monitor := health.NewMonitor(health.MonitorConfig{
		Circuit: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			MonitorWindow:    cfg.Resilience.MonitorWindow,
			RecoveryTimeout:  cfg.Resilience.RecoveryTimeout,
		},
		CheckInterval: cfg.Health.CheckInterval,
	}, bus, m, logger)

	manager := fallback.NewManager(defaultProviders, fallback.EnvConfigured(os.Getenv), bus, m, logger)
	if current, ok := manager.Current(); ok {
		logger.Info("Provider selected", "provider", current.ID)
	} else {
		logger.Warn("No configured provider available at startup")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor.Start(ctx)
	defer monitor.Stop()

	router := api.NewRouter(cfg, queue, monitor, manager, m, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server", "addr", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}

	if err := queue.Save(); err != nil {
		logger.Warn("Final queue save failed", "error", err)
	}

	logger.Info("Server exited")
}
