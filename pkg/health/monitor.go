package health

import (
	"context"
	"sync"
	"time"

	"github.com/frankfrisby/backbone/pkg/events"
	"github.com/frankfrisby/backbone/pkg/logging"
	"github.com/frankfrisby/backbone/pkg/metrics"
	"github.com/frankfrisby/backbone/pkg/resilience"
)

// Status represents the health status of a service
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	// degradedAfter is the consecutive-failure count that marks a service degraded
	degradedAfter = 3
	// unhealthyAfter is the consecutive-failure count that marks a service unhealthy
	unhealthyAfter = 5
	// checkTimeout bounds every explicit health check probe
	checkTimeout = 5 * time.Second
)

// CheckFunc is an explicit health probe, distinct from passive failure counting
type CheckFunc func(ctx context.Context) error

// ServiceState is a point-in-time snapshot of a registered service
type ServiceState struct {
	Name                 string                  `json:"name"`
	Status               Status                  `json:"status"`
	ConsecutiveFailures  int                     `json:"consecutive_failures"`
	ConsecutiveSuccesses int                     `json:"consecutive_successes"`
	LastError            string                  `json:"last_error,omitempty"`
	LastCall             time.Time               `json:"last_call,omitempty"`
	CircuitState         resilience.CircuitState `json:"-"`
	Circuit              string                  `json:"circuit"`
	Counts               resilience.Counts       `json:"counts"`
}

type registeredService struct {
	name                 string
	circuit              *resilience.CircuitBreaker
	check                CheckFunc
	status               Status
	consecutiveFailures  int
	consecutiveSuccesses int
	lastError            string
	lastCall             time.Time
}

// MonitorConfig holds configuration for the health monitor
type MonitorConfig struct {
	// Circuit is the base circuit breaker configuration applied per service
	Circuit resilience.CircuitBreakerConfig
	// CheckInterval drives the periodic health check loop started by Start
	CheckInterval time.Duration
}

// DefaultMonitorConfig returns a default monitor configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Circuit:       resilience.DefaultCircuitBreakerConfig(""),
		CheckInterval: 30 * time.Second,
	}
}

// Monitor owns one circuit breaker per named external service, records call
// outcomes, runs periodic health checks, and derives an aggregate system
// health classification.
type Monitor struct {
	config  MonitorConfig
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *logging.Logger

	mutex               sync.RWMutex
	services            map[string]*registeredService
	healthCheckFailures uint64

	stopCh  chan struct{}
	running bool
}

// NewMonitor creates a new service health monitor
func NewMonitor(config MonitorConfig, bus *events.Bus, m *metrics.Metrics, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Monitor{
		config:   config,
		bus:      bus,
		metrics:  m,
		logger:   logger,
		services: make(map[string]*registeredService),
		stopCh:   make(chan struct{}),
	}
}

// RegisterService creates a circuit and failure counters for the name.
// The optional check is invoked by RunHealthChecks.
func (mon *Monitor) RegisterService(name string, check CheckFunc) {
	mon.mutex.Lock()
	defer mon.mutex.Unlock()

	if _, exists := mon.services[name]; exists {
		return
	}

	cbConfig := mon.config.Circuit
	cbConfig.Name = name
	cbConfig.OnStateChange = func(circuitName string, from, to resilience.CircuitState) {
		mon.onCircuitStateChange(circuitName, from, to)
	}

	mon.services[name] = &registeredService{
		name:    name,
		circuit: resilience.NewCircuitBreaker(cbConfig),
		check:   check,
		status:  StatusHealthy,
	}

	mon.logger.Info("Service registered for health monitoring", "service", name)
}

// onCircuitStateChange forwards circuit transitions tagged with the service name
func (mon *Monitor) onCircuitStateChange(name string, from, to resilience.CircuitState) {
	if mon.metrics != nil && mon.metrics.Enabled() {
		mon.metrics.CircuitState.WithLabelValues(name).Set(float64(to))
	}
	if mon.bus != nil {
		mon.bus.Publish(context.Background(), events.Event{
			Type:   events.TypeCircuitStateChange,
			Source: name,
			Fields: map[string]interface{}{
				"from":    from.String(),
				"to":      to.String(),
				"circuit": name,
			},
		})
	}
}

// RecordCall updates consecutive failure/success counters for the service
// and derives its status. It does not invoke the circuit; that is the
// caller's job via ExecuteWithCircuit.
func (mon *Monitor) RecordCall(ctx context.Context, name string, success bool, callErr error) {
	mon.mutex.Lock()
	svc, exists := mon.services[name]
	if !exists {
		mon.mutex.Unlock()
		mon.logger.Warn("Call recorded for unregistered service", "service", name)
		return
	}

	svc.lastCall = time.Now()

	if success {
		svc.consecutiveSuccesses++
		svc.consecutiveFailures = 0
		svc.lastError = ""
		svc.status = StatusHealthy
		mon.mutex.Unlock()
		return
	}

	svc.consecutiveFailures++
	svc.consecutiveSuccesses = 0
	if callErr != nil {
		svc.lastError = callErr.Error()
	}

	switch {
	case svc.consecutiveFailures >= unhealthyAfter:
		svc.status = StatusUnhealthy
	case svc.consecutiveFailures >= degradedAfter:
		svc.status = StatusDegraded
	}

	failures := svc.consecutiveFailures
	status := svc.status
	mon.mutex.Unlock()

	mon.logger.Warn("Service call failed",
		"service", name,
		"consecutive_failures", failures,
		"status", string(status),
	)

	if mon.bus != nil {
		fields := map[string]interface{}{
			"consecutive_failures": failures,
			"status":               string(status),
		}
		if callErr != nil {
			fields["error"] = callErr.Error()
		}
		mon.bus.Publish(ctx, events.Event{
			Type:   events.TypeServiceError,
			Source: name,
			Fields: fields,
		})
	}
}

// ExecuteWithCircuit routes the operation through the named service's
// circuit breaker, then records the outcome. This is the single intended
// entry point tying the circuit and the counters together.
func (mon *Monitor) ExecuteWithCircuit(ctx context.Context, name string, op func(context.Context) (interface{}, error)) (interface{}, error) {
	mon.mutex.RLock()
	svc, exists := mon.services[name]
	mon.mutex.RUnlock()

	if !exists {
		mon.RegisterService(name, nil)
		mon.mutex.RLock()
		svc = mon.services[name]
		mon.mutex.RUnlock()
	}

	result, err := svc.circuit.Execute(ctx, op)

	if mon.metrics != nil && mon.metrics.Enabled() {
		outcome := "success"
		switch {
		case resilience.IsCircuitOpen(err):
			outcome = "rejected"
		case err != nil:
			outcome = "failure"
		}
		mon.metrics.CircuitCallsTotal.WithLabelValues(name, outcome).Inc()
	}

	mon.RecordCall(ctx, name, err == nil, err)
	return result, err
}

// RunHealthChecks invokes every registered health check under a fixed
// timeout. A failed probe marks the service unhealthy directly,
// independent of the circuit.
func (mon *Monitor) RunHealthChecks(ctx context.Context) {
	mon.mutex.RLock()
	checks := make(map[string]CheckFunc)
	for name, svc := range mon.services {
		if svc.check != nil {
			checks[name] = svc.check
		}
	}
	mon.mutex.RUnlock()

	for name, check := range checks {
		probe := check
		_, err := resilience.WithTimeout(ctx, checkTimeout, name+" health check", func(ctx context.Context) (interface{}, error) {
			return nil, probe(ctx)
		})

		result := "success"
		if err != nil {
			result = "failure"
			mon.markCheckFailed(ctx, name, err)
		}
		if mon.metrics != nil && mon.metrics.Enabled() {
			mon.metrics.HealthChecksTotal.WithLabelValues(name, result).Inc()
		}
	}
}

func (mon *Monitor) markCheckFailed(ctx context.Context, name string, err error) {
	mon.mutex.Lock()
	svc, exists := mon.services[name]
	if exists {
		svc.status = StatusUnhealthy
		svc.lastError = err.Error()
	}
	mon.healthCheckFailures++
	mon.mutex.Unlock()

	mon.logger.Error("Health check failed", "service", name, "error", err)

	if mon.bus != nil {
		mon.bus.Publish(ctx, events.Event{
			Type:   events.TypeHealthCheckFailed,
			Source: name,
			Fields: map[string]interface{}{"error": err.Error()},
		})
	}
}

// HealthCheckFailures returns the number of health check probes that have
// failed since the monitor was created
func (mon *Monitor) HealthCheckFailures() uint64 {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()
	return mon.healthCheckFailures
}

// ServiceState returns a snapshot of a registered service
func (mon *Monitor) ServiceState(name string) (ServiceState, bool) {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	svc, exists := mon.services[name]
	if !exists {
		return ServiceState{}, false
	}
	return mon.snapshot(svc), true
}

// AllServices returns snapshots of every registered service
func (mon *Monitor) AllServices() []ServiceState {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	states := make([]ServiceState, 0, len(mon.services))
	for _, svc := range mon.services {
		states = append(states, mon.snapshot(svc))
	}
	return states
}

func (mon *Monitor) snapshot(svc *registeredService) ServiceState {
	cbState := svc.circuit.State()
	return ServiceState{
		Name:                 svc.name,
		Status:               svc.status,
		ConsecutiveFailures:  svc.consecutiveFailures,
		ConsecutiveSuccesses: svc.consecutiveSuccesses,
		LastError:            svc.lastError,
		LastCall:             svc.lastCall,
		CircuitState:         cbState,
		Circuit:              cbState.String(),
		Counts:               svc.circuit.Counts(),
	}
}

// SystemHealth derives the aggregate classification: healthy when every
// registered service is healthy, degraded when a strict majority is
// healthy, unhealthy otherwise.
func (mon *Monitor) SystemHealth() Status {
	mon.mutex.RLock()
	total := len(mon.services)
	healthy := 0
	for _, svc := range mon.services {
		if svc.status == StatusHealthy {
			healthy++
		}
	}
	mon.mutex.RUnlock()

	var status Status
	switch {
	case total == 0 || healthy == total:
		status = StatusHealthy
	case healthy*2 > total:
		status = StatusDegraded
	default:
		status = StatusUnhealthy
	}

	if mon.metrics != nil && mon.metrics.Enabled() {
		var v float64
		switch status {
		case StatusHealthy:
			v = 2
		case StatusDegraded:
			v = 1
		}
		mon.metrics.SystemHealth.Set(v)
	}

	return status
}

// Start runs the periodic health check loop until Stop or ctx cancellation
func (mon *Monitor) Start(ctx context.Context) {
	mon.mutex.Lock()
	if mon.running {
		mon.mutex.Unlock()
		return
	}
	mon.running = true
	mon.mutex.Unlock()

	go mon.checkLoop(ctx)
	mon.logger.Info("Health monitor started", "interval", mon.config.CheckInterval)
}

// Stop stops the periodic health check loop
func (mon *Monitor) Stop() {
	mon.mutex.Lock()
	defer mon.mutex.Unlock()

	if !mon.running {
		return
	}
	close(mon.stopCh)
	mon.running = false
	mon.logger.Info("Health monitor stopped")
}

func (mon *Monitor) checkLoop(ctx context.Context) {
	interval := mon.config.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mon.stopCh:
			return
		case <-ticker.C:
			mon.RunHealthChecks(ctx)
			mon.SystemHealth()
		}
	}
}
