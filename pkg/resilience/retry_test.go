package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	retrier := NewRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	result, err := retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	retrier := NewRetrier(RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	sentinel := errors.New("persistent failure")
	calls := 0
	_, err := retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, sentinel
	})

	assert.Equal(t, 3, calls)
	// The final error is the operation's own error, not a wrapped copy
	assert.Equal(t, sentinel, err)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	retrier := NewRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	result, err := retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

func TestRetryBackoffDelays(t *testing.T) {
	retrier := NewRetrier(RetryConfig{
		MaxAttempts:       4,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          250 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, 100*time.Millisecond, retrier.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, retrier.calculateDelay(2))
	assert.Equal(t, 250*time.Millisecond, retrier.calculateDelay(3), "delay must be capped at MaxDelay")
}

func TestRetryNeverRetriesCircuitOpen(t *testing.T) {
	retrier := NewRetrier(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond})

	calls := 0
	_, err := retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, &CircuitOpenError{Name: "dep", State: StateOpen}
	})

	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 1, calls, "a circuit-open rejection must not be retried")
}

func TestRetryShouldRetryHook(t *testing.T) {
	fatal := errors.New("fatal")
	retrier := NewRetrier(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		ShouldRetry: func(err error, attempt int) bool {
			return !errors.Is(err, fatal)
		},
	})

	calls := 0
	_, err := retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, fatal
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	retrier := NewRetrier(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	})

	_, _ = retrier.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("nope")
	})

	// Called before each retry, so one fewer than total attempts
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	retrier := NewRetrier(RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := retrier.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 10, "cancellation must stop the retry loop early")
}
