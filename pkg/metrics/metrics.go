package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Task metrics
	TasksTotal   *prometheus.CounterVec
	TaskAttempts *prometheus.CounterVec
	QueueDepth   *prometheus.GaugeVec

	// Circuit breaker metrics
	CircuitState      *prometheus.GaugeVec
	CircuitCallsTotal *prometheus.CounterVec

	// Model fallback metrics
	ModelSwitchesTotal *prometheus.CounterVec
	ModelFailuresTotal *prometheus.CounterVec

	// Health metrics
	HealthChecksTotal *prometheus.CounterVec
	SystemHealth      prometheus.Gauge

	registry *prometheus.Registry
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "backbone",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks by terminal status",
			},
			[]string{"status", "type"},
		),
		TaskAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "task_attempts_total",
				Help:      "Total number of task execution attempts",
			},
			[]string{"type"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "queue_depth",
				Help:      "Number of active tasks by status",
			},
			[]string{"status"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
		CircuitCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "circuit_calls_total",
				Help:      "Total circuit breaker calls by outcome",
			},
			[]string{"circuit", "outcome"},
		),
		ModelSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "model_switches_total",
				Help:      "Total number of provider fallback switches",
			},
			[]string{"from", "to"},
		),
		ModelFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "model_failures_total",
				Help:      "Total number of reported provider failures",
			},
			[]string{"provider"},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "health_checks_total",
				Help:      "Total number of health check probes by result",
			},
			[]string{"service", "result"},
		),
		SystemHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "system_health",
				Help:      "Aggregate system health (0=unhealthy, 1=degraded, 2=healthy)",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.TasksTotal,
		m.TaskAttempts,
		m.QueueDepth,
		m.CircuitState,
		m.CircuitCallsTotal,
		m.ModelSwitchesTotal,
		m.ModelFailuresTotal,
		m.HealthChecksTotal,
		m.SystemHealth,
	)

	return m
}

// Enabled reports whether metrics collection is active
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Handler returns a Gin handler serving the Prometheus endpoint
func (m *Metrics) Handler() gin.HandlerFunc {
	if m.registry == nil {
		return func(c *gin.Context) { c.Status(404) }
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
