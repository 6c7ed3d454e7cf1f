// Package resilience guards calls to Redis, Kafka and slow index sources:
// a circuit breaker, retry with exponential backoff and permanent errors,
// and a per-call timeout.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BreakerConfig tunes a Breaker. Zero values take the defaults below.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default 5.
	Threshold int
	// Cooldown is how long the breaker stays open before letting probes
	// through. Default 30s.
	Cooldown time.Duration
	// Probes is the number of concurrent calls allowed while half-open.
	// Default 1.
	Probes int
	// Ignore reports errors that are outcomes rather than faults, such as
	// a cache miss. They neither count as failures nor reset the count.
	Ignore func(error) bool
	// OnStateChange is called with the new state after every transition,
	// outside the breaker's lock.
	OnStateChange func(name string, to State)
}

// Breaker opens after Threshold consecutive failures and rejects calls
// until Cooldown has passed, then lets Probes calls test the dependency.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do calls fn unless the breaker is open. Cancellation of ctx by the caller
// is not held against the dependency.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.record(true)
	case b.cfg.Ignore != nil && b.cfg.Ignore(err):
		b.release()
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		b.release()
	default:
		b.record(false)
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	changed := b.state != StateClosed
	b.state = StateClosed
	b.failures = 0
	b.inFlight = 0
	b.mu.Unlock()
	if changed {
		b.notify(StateClosed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	var changed bool
	defer func() {
		b.mu.Unlock()
		if changed {
			b.logger.Info("circuit half-open, probing")
			b.notify(StateHalfOpen)
		}
	}()

	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - time.Since(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.inFlight = 0
		changed = true
		fallthrough
	case StateHalfOpen:
		if b.inFlight >= b.cfg.Probes {
			return fmt.Errorf("%w: %s (probe in progress)", ErrCircuitOpen, b.name)
		}
		b.inFlight++
	}
	return nil
}

// release gives back a probe slot without judging the dependency.
func (b *Breaker) release() {
	b.mu.Lock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	prev := b.state
	if ok {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.inFlight = 0
		}
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.inFlight = 0
		}
	}
	next, failures := b.state, b.failures
	b.mu.Unlock()

	if next == prev {
		return
	}
	if next == StateOpen {
		b.logger.Warn("circuit opened", "consecutive_failures", failures, "cooldown", b.cfg.Cooldown)
	} else {
		b.logger.Info("circuit closed")
	}
	b.notify(next)
}

func (b *Breaker) notify(to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
