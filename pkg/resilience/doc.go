// Package resilience provides the failure-isolation primitives of the
// Backbone runtime: circuit breaker, timeout wrapper, retry with
// exponential backoff, and a composed resilient function.
//
// # Circuit Breaker Pattern
//
// The circuit breaker prevents cascading failures by tracking recent
// failures of an external dependency and fast-failing calls once the
// dependency is judged unhealthy.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "anthropic",
//		FailureThreshold: 5,
//		MonitorWindow:    time.Minute,
//		RecoveryTimeout:  30 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.Call(ctx, prompt)
//	})
//
// # Retry with Exponential Backoff
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	result, err := retrier.Execute(ctx, riskyOperation)
//
// Circuit-open errors are never retried; they signal "don't even try".
//
// # Composition
//
// NewResilientFunc nests the primitives so that the retry loop runs around
// a timeout-bounded attempt, and the optional circuit breaker wraps the
// whole retrying operation:
//
//	rf := resilience.NewResilientFunc(resilience.ResilientConfig{
//		Name:    "provider-call",
//		Timeout: 30 * time.Second,
//		Retry:   resilience.DefaultRetryConfig(),
//		Circuit: &cbConfig,
//	}, op)
//	result, err := rf.Execute(ctx)
//
// Three distinguished error kinds are preserved across composition:
// CircuitOpenError (never retried), TimeoutError (retried subject to the
// retry policy), and all other operation errors (retried subject to
// ShouldRetry).
package resilience
