package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutCompletesInTime(t *testing.T) {
	result, err := WithTimeout(context.Background(), 100*time.Millisecond, "fast", func(ctx context.Context) (interface{}, error) {
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", result)
}

func TestWithTimeoutPropagatesOperationError(t *testing.T) {
	opErr := errors.New("op failed")
	_, err := WithTimeout(context.Background(), 100*time.Millisecond, "failing", func(ctx context.Context) (interface{}, error) {
		return nil, opErr
	})

	assert.Equal(t, opErr, err)
}

func TestWithTimeoutExceeded(t *testing.T) {
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var toErr *TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, "slow", toErr.Operation)
	assert.Equal(t, 20*time.Millisecond, toErr.Timeout)
}

func TestWithTimeoutCancelsOperationContext(t *testing.T) {
	cancelled := make(chan struct{})

	_, err := WithTimeout(context.Background(), 20*time.Millisecond, "cooperative", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	assert.True(t, IsTimeout(err))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was never cancelled")
	}
}

func TestWithTimeoutParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Second, "parent", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err), "parent cancellation is not a timeout")
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&TimeoutError{Operation: "x", Timeout: time.Second}))
	assert.False(t, IsTimeout(errors.New("other")))
	assert.False(t, IsTimeout(nil))
}
