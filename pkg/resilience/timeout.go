package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn with a deadline of timeout and returns its result. Work that
// ignores its context, such as a scan over an in-memory source, keeps
// running in the background after the deadline and its result is dropped.
// A timeout of zero or less calls fn directly.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, fmt.Errorf("%s: limit %v exceeded", name, timeout))
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != ctx.Err() {
			return zero, fmt.Errorf("%w: %w", cause, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
