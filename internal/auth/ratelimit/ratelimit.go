// Package ratelimit implements per-key token buckets for the publishing
// and search endpoints.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of tracked keys. The least recently
// seen key is dropped first; a dropped key starts again with a full bucket.
const DefaultCapacity = 50_000

type bucket struct {
	tokens float64
	seen   time.Time
}

// Limiter grants each key limit requests per window, refilled
// continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]
	window  time.Duration
	now     func() time.Time
}

func New(window time.Duration) *Limiter {
	return NewWithCapacity(window, DefaultCapacity)
}

func NewWithCapacity(window time.Duration, capacity int) *Limiter {
	buckets, err := lru.New[string, *bucket](capacity)
	if err != nil {
		panic(err) // only for capacity <= 0
	}
	return &Limiter{buckets: buckets, window: window, now: time.Now}
}

// Take spends one token of key's bucket. When none is left it returns
// false and how long until one is. limit <= 0 means unlimited.
func (l *Limiter) Take(key string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(limit)
	perSecond := capacity / l.window.Seconds()

	b, ok := l.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: capacity, seen: now}
		l.buckets.Add(key, b)
	}
	b.tokens = min(capacity, b.tokens+now.Sub(b.seen).Seconds()*perSecond)
	b.seen = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

// Allow is Take without the wait.
func (l *Limiter) Allow(key string, limit int) bool {
	ok, _ := l.Take(key, limit)
	return ok
}

// Reset forgets key, giving it a full bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.Remove(key)
}

// Tracked is the number of keys currently held.
func (l *Limiter) Tracked() int {
	return l.buckets.Len()
}
