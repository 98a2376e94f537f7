package forecast

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout races fn against a deadline. On expiry (or context
// cancellation) it returns ErrDeadlineExceeded and the late result is
// discarded when it eventually arrives: the goroutine writes into a buffered
// channel nobody reads, so an abandoned computation can never mutate state
// the caller observes. The work itself is not preempted.
//
// Panics inside fn are converted to errors so a faulty slow path degrades
// instead of crashing the caller.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, fmt.Errorf("computation panicked: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		return zero, ErrDeadlineExceeded
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	}
}
