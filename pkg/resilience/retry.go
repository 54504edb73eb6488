package resilience

import (
	"context"
	"math"
	"time"

	"github.com/frankfrisby/backbone/pkg/logging"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the delay between retries
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// ShouldRetry decides whether a given error on a given attempt is
	// retried. Circuit-open errors are never retried regardless.
	ShouldRetry func(err error, attempt int) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config RetryConfig
	logger *logging.Logger
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &Retrier{
		config: config,
		logger: logging.GetLogger(),
	}
}

// Execute executes the given operation with retry logic. After the final
// failed attempt the last error is returned unchanged.
func (r *Retrier) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"attempt", attempt,
					"max_attempts", r.config.MaxAttempts,
				)
			}
			return result, nil
		}

		lastErr = err

		// Fast-fail signals must propagate immediately
		if IsCircuitOpen(err) {
			return nil, err
		}

		if r.config.ShouldRetry != nil && !r.config.ShouldRetry(err, attempt) {
			r.logger.Debug("Error is not retryable, stopping",
				"error", err.Error(),
				"attempt", attempt,
			)
			return nil, err
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)

		r.logger.Debug("Operation failed, retrying",
			"error", err.Error(),
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"delay", delay,
		)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error("Operation failed after all retry attempts",
		"error", lastErr.Error(),
		"attempts", r.config.MaxAttempts,
	)

	return nil, lastErr
}

// delay = min(baseDelay * multiplier^(attempt-1), maxDelay)
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// Retry is a convenience function to execute an operation with default
// retry configuration
func Retry(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	return NewRetrier(DefaultRetryConfig()).Execute(ctx, op)
}
