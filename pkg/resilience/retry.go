package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix. Permanent(nil) is
// nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff computes jittered exponential delays. Zero fields take the
// defaults 100ms initial, 10s max, factor 2 and 10% jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	if b.Jitter <= 0 || b.Jitter > 1 {
		b.Jitter = 0.1
	}
	return b
}

// Delay returns the pause after the n-th consecutive failure, n >= 1. It
// never exceeds Max.
func (b Backoff) Delay(n int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(max(n, 1)-1))
	d += d * b.Jitter * (2*rand.Float64() - 1)
	return time.Duration(min(max(d, float64(b.Initial)/2), float64(b.Max)))
}

// Sleep pauses for d or until ctx ends, whichever is first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RetryConfig struct {
	// Attempts includes the first call. Zero means 3.
	Attempts int
	Backoff  Backoff
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends or
// the attempts run out.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for n := 1; ; n++ {
		if err = fn(ctx); err == nil {
			if n > 1 {
				logger.Info("succeeded after retry", "attempt", n)
			}
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if n == attempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempts, err)
		}
		delay := cfg.Backoff.Delay(n)
		logger.Warn("attempt failed", "attempt", n, "of", attempts, "error", err, "retry_in", delay)
		if serr := Sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: abandoned after %d attempts: %w", name, n, serr)
		}
	}
}
