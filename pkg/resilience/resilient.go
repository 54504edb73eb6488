package resilience

import (
	"context"
	"time"

	"github.com/frankfrisby/backbone/pkg/logging"
)

// Operation is a single asynchronous unit of work
type Operation func(ctx context.Context) (interface{}, error)

// ResilientConfig configures a composed resilient function
type ResilientConfig struct {
	// Name labels the operation in logs, errors and the circuit breaker
	Name string
	// Timeout bounds each individual attempt; zero disables the deadline
	Timeout time.Duration
	// Retry configures the retry loop around the timeout-bounded attempt
	Retry RetryConfig
	// Circuit optionally wraps the whole retrying operation, so repeated
	// timeouts still count toward tripping it
	Circuit *CircuitBreakerConfig
}

// ResilientFunc composes timeout, retry and an optional circuit breaker
// around an operation. The retry loop runs inside the breaker: one breaker
// failure is recorded per exhausted retry sequence.
type ResilientFunc struct {
	name    string
	timeout time.Duration
	retrier *Retrier
	breaker *CircuitBreaker
	op      Operation
	logger  *logging.Logger
}

// NewResilientFunc builds a resilient callable from the given operation
func NewResilientFunc(config ResilientConfig, op Operation) *ResilientFunc {
	rf := &ResilientFunc{
		name:    config.Name,
		timeout: config.Timeout,
		retrier: NewRetrier(config.Retry),
		op:      op,
		logger:  logging.GetLogger(),
	}

	if config.Circuit != nil {
		cbConfig := *config.Circuit
		if cbConfig.Name == "" {
			cbConfig.Name = config.Name
		}
		rf.breaker = NewCircuitBreaker(cbConfig)
	}

	return rf
}

// Execute runs the operation through the composed wrappers
func (rf *ResilientFunc) Execute(ctx context.Context) (interface{}, error) {
	retried := func(ctx context.Context) (interface{}, error) {
		return rf.retrier.Execute(ctx, rf.attempt)
	}

	if rf.breaker == nil {
		return retried(ctx)
	}
	return rf.breaker.Execute(ctx, retried)
}

// attempt is a single timeout-bounded invocation of the operation
func (rf *ResilientFunc) attempt(ctx context.Context) (interface{}, error) {
	if rf.timeout <= 0 {
		return rf.op(ctx)
	}
	return WithTimeout(ctx, rf.timeout, rf.name, rf.op)
}

// State returns the circuit breaker state, or StateClosed when no breaker
// is configured
func (rf *ResilientFunc) State() CircuitState {
	if rf.breaker == nil {
		return StateClosed
	}
	return rf.breaker.State()
}
