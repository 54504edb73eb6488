package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Queue      QueueConfig      `json:"queue"`
	Resilience ResilienceConfig `json:"resilience"`
	Health     HealthConfig     `json:"health"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// QueueConfig contains task queue configuration
type QueueConfig struct {
	PersistPath    string        `json:"persist_path"`
	HistoryLimit   int           `json:"history_limit"`
	DefaultRetries int           `json:"default_retries"`
	SaveInterval   time.Duration `json:"save_interval"`
}

// ResilienceConfig contains circuit breaker and retry configuration
type ResilienceConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	MonitorWindow    time.Duration `json:"monitor_window"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	MaxAttempts      int           `json:"max_attempts"`
	BaseDelay        time.Duration `json:"base_delay"`
	MaxDelay         time.Duration `json:"max_delay"`
	OperationTimeout time.Duration `json:"operation_timeout"`
}

// HealthConfig contains health monitor configuration
type HealthConfig struct {
	CheckInterval time.Duration `json:"check_interval"`
	CheckTimeout  time.Duration `json:"check_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "127.0.0.1"),
			Port:         getEnvInt("SERVER_PORT", 8090),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Queue: QueueConfig{
			PersistPath:    getEnvString("QUEUE_PERSIST_PATH", "task-queue.md"),
			HistoryLimit:   getEnvInt("QUEUE_HISTORY_LIMIT", 50),
			DefaultRetries: getEnvInt("QUEUE_DEFAULT_RETRIES", 3),
			SaveInterval:   getEnvDuration("QUEUE_SAVE_INTERVAL", 30*time.Second),
		},
		Resilience: ResilienceConfig{
			FailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			MonitorWindow:    getEnvDuration("CIRCUIT_MONITOR_WINDOW", time.Minute),
			RecoveryTimeout:  getEnvDuration("CIRCUIT_RECOVERY_TIMEOUT", 30*time.Second),
			MaxAttempts:      getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:        getEnvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:         getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			OperationTimeout: getEnvDuration("OPERATION_TIMEOUT", 2*time.Minute),
		},
		Health: HealthConfig{
			CheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
			CheckTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnvString("METRICS_NAMESPACE", "backbone"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Queue.HistoryLimit <= 0 {
		return fmt.Errorf("queue history limit must be positive")
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("circuit failure threshold must be positive")
	}
	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
