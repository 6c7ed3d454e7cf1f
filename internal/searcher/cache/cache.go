// Package cache memoises search results in two levels: an in-process LRU
// in front of an optional shared Redis store. Concurrent misses for the
// same key are collapsed into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/metrics"
	"github.com/3worlds/aot/pkg/resilience"
)

const (
	keyPrefix        = "search:"
	defaultLocalSize = 1024
)

// RemoteStore is the shared level of the cache. pkg/redis.Client
// implements it.
type RemoteStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	local   *lru.Cache[string, *executor.SearchResult]
	remote  RemoteStore
	breaker *resilience.Breaker
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// Stats reports cache effectiveness since start-up.
type Stats struct {
	LocalHits     int64  `json:"local_hits"`
	RemoteHits    int64  `json:"remote_hits"`
	Misses        int64  `json:"misses"`
	LocalEntries  int    `json:"local_entries"`
	RemoteEnabled bool   `json:"remote_enabled"`
	RemoteState   string `json:"remote_state,omitempty"`
}

// New creates a cache. remote may be nil to run with the local level only;
// m may be nil to skip metrics.
func New(remote RemoteStore, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	size := cfg.LocalCacheSize
	if size <= 0 {
		size = defaultLocalSize
	}
	local, _ := lru.New[string, *executor.SearchResult](size)
	c := &QueryCache{
		local:   local,
		remote:  remote,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	if remote != nil {
		c.breaker = resilience.NewBreaker("redis-cache", resilience.BreakerConfig{
			Threshold:     3,
			Cooldown:      15 * time.Second,
			OnStateChange: c.recordBreaker,
		})
	}
	return c
}

// Get looks query up in the local level, then in Redis. A Redis hit is
// copied into the local level.
func (c *QueryCache) Get(ctx context.Context, query string, limit int, source string) (*executor.SearchResult, bool) {
	key := BuildKey(query, limit, source)
	if result, ok := c.local.Get(key); ok {
		c.localHits.Add(1)
		c.recordHit("local")
		return result, true
	}
	if c.remote == nil {
		c.recordMiss()
		return nil, false
	}
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.remote.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.recordMiss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.local.Add(key, &result)
	c.remoteHits.Add(1)
	c.recordHit("redis")
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, query string, limit int, source string, result *executor.SearchResult) {
	key := BuildKey(query, limit, source)
	c.local.Add(key, result)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.remote.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and stores it. The
// boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	source string,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, query, limit, source); ok {
		return result, true, nil
	}
	key := BuildKey(query, limit, source)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.local.Get(key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, source, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result. It is called whenever a source
// is loaded or replaced.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	dropped := c.local.Len()
	c.local.Purge()
	if c.remote == nil {
		c.logger.Info("cache invalidated", "local_entries", dropped)
		return nil
	}
	var deleted int64
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = c.remote.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "local_entries", dropped, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		LocalHits:     c.localHits.Load(),
		RemoteHits:    c.remoteHits.Load(),
		Misses:        c.misses.Load(),
		LocalEntries:  c.local.Len(),
		RemoteEnabled: c.remote != nil,
	}
	if c.breaker != nil {
		s.RemoteState = c.breaker.State().String()
	}
	return s
}

func (c *QueryCache) recordHit(level string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(level).Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) recordBreaker(name string, to resilience.State) {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

// BuildKey derives the cache key of a query. Queries that normalise to
// the same form share a key.
func BuildKey(query string, limit int, source string) string {
	raw := fmt.Sprintf("%s|limit=%d|source=%s", normalizeQuery(query), limit, source)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery lower-cases query and puts exclusions and qualifiers in
// a canonical order. Positive words keep their order since it decides
// name matches.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	excludes := make([]string, 0)
	filters := make([]string, 0)
	queryType := "AND"
	excludeNext := false
	for _, w := range words {
		switch w {
		case "and":
			queryType = "AND"
			continue
		case "or":
			queryType = "OR"
			continue
		case "not":
			excludeNext = true
			continue
		}
		switch {
		case isQualifier(w):
			filters = append(filters, w)
		case excludeNext:
			excludes = append(excludes, w)
			excludeNext = false
		case strings.HasPrefix(w, "-") && len(w) > 1:
			excludes = append(excludes, w[1:])
		default:
			terms = append(terms, w)
		}
	}
	sort.Strings(excludes)
	sort.Strings(filters)
	parts := []string{queryType, strings.Join(terms, " ")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	if len(filters) > 0 {
		parts = append(parts, "F:"+strings.Join(filters, ","))
	}
	return strings.Join(parts, "|")
}

func isQualifier(w string) bool {
	i := strings.IndexByte(w, ':')
	if i <= 0 || i == len(w)-1 {
		return false
	}
	switch w[:i] {
	case "p", "package", "c", "class", "kind":
		return true
	}
	return false
}
