package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError represents an operation that exceeded its deadline
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation '%s' timed out after %s", e.Operation, e.Timeout)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	var toErr *TimeoutError
	return errors.As(err, &toErr)
}

// WithTimeout races the operation against a timer. If the timer fires first
// a TimeoutError is returned and the operation's context is cancelled, so a
// well-behaved operation can stop early; cancellation remains cooperative
// and a late result from an abandoned operation is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, label string, op func(context.Context) (interface{}, error)) (interface{}, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}

	// Buffered so the loser of the race can still send and exit
	done := make(chan outcome, 1)

	go func() {
		result, err := op(opCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{Operation: label, Timeout: timeout}
	}
}
