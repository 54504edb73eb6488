package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frankfrisby/backbone/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, calls are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, calls are rejected immediately
	StateOpen
	// StateHalfOpen - circuit is half-open, a single probe call is allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of failures within MonitorWindow
	// that trips the circuit from closed to open
	FailureThreshold int
	// MonitorWindow bounds the sliding window of recorded failures
	MonitorWindow time.Duration
	// RecoveryTimeout is the period of the open state, after which a
	// single probe call is allowed through (half-open)
	RecoveryTimeout time.Duration
	// OnStateChange is called whenever the state of the circuit breaker
	// changes, after the new state is already committed
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		MonitorWindow:    time.Minute,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Counts holds call counters for a circuit
type Counts struct {
	Total     uint64 `json:"total"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
	Rejected  uint64 `json:"rejected"`
}

// CircuitBreaker is a per-dependency state machine that fast-fails calls
// once the dependency is judged unhealthy, avoiding wasted timeouts.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	monitorWindow    time.Duration
	recoveryTimeout  time.Duration
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex       sync.Mutex
	state       CircuitState
	failures    []time.Time
	openedAt    time.Time
	probeActive bool
	counts      Counts

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.MonitorWindow <= 0 {
		config.MonitorWindow = time.Minute
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		monitorWindow:    config.MonitorWindow,
		recoveryTimeout:  config.RecoveryTimeout,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
		logger:           logging.GetLogger(),
	}
}

// Execute runs the given operation if the circuit breaker accepts it.
// While open and before the recovery timeout has elapsed, the operation is
// never invoked and a CircuitOpenError is returned immediately.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterCall(false)
			panic(r)
		}
	}()

	result, err := op(ctx)
	cb.afterCall(err == nil)
	return result, err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Counts returns a copy of the current call counters
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.counts
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()

	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.recoveryTimeout {
			cb.counts.Total++
			cb.counts.Rejected++
			return &CircuitOpenError{Name: cb.name, State: cb.state}
		}
		// Recovery timeout elapsed, allow a single probe through
		cb.setState(StateHalfOpen, now)
		cb.probeActive = true
	case StateHalfOpen:
		if cb.probeActive {
			cb.counts.Total++
			cb.counts.Rejected++
			return &CircuitOpenError{Name: cb.name, State: cb.state}
		}
		cb.probeActive = true
	}

	cb.counts.Total++
	return nil
}

func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()

	if success {
		cb.counts.Successes++
		if cb.state == StateHalfOpen {
			cb.failures = nil
			cb.probeActive = false
			cb.setState(StateClosed, now)
		}
		return
	}

	cb.counts.Failures++
	cb.failures = append(cb.failures, now)
	cb.pruneFailures(now)

	switch cb.state {
	case StateClosed:
		if len(cb.failures) >= cb.failureThreshold {
			cb.openedAt = now
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.probeActive = false
		cb.openedAt = now
		cb.setState(StateOpen, now)
	}
}

// pruneFailures drops window entries older than the monitor window
func (cb *CircuitBreaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-cb.monitorWindow)
	kept := cb.failures[:0]
	for _, ts := range cb.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	cb.failures = kept
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failures_in_window", len(cb.failures),
	)
}

// CircuitOpenError represents a call rejected by an open circuit breaker
type CircuitOpenError struct {
	Name  string
	State CircuitState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitOpen checks if an error is a circuit breaker rejection
func IsCircuitOpen(err error) bool {
	var cbErr *CircuitOpenError
	return errors.As(err, &cbErr)
}
