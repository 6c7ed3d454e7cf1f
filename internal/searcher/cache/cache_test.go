package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/metrics"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for key := range s.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		TotalHits: 1,
		Results:   []executor.Hit{{Source: "aot", Key: "au.edu.anu.aot.archetype.Archetypes#TYPE", Label: "TYPE", Score: 10}},
		TermStats: map[string]int{"type": 1},
	}
}

func TestNormalizeQuery(t *testing.T) {
	same := [][2]string{
		{"check NOT tree", "Check   -tree"},
		{"c:Archetypes kind:method check", "kind:method check c:archetypes"},
		{"check OR is", "check or is"},
	}
	for _, pair := range same {
		assert.Equal(t, normalizeQuery(pair[0]), normalizeQuery(pair[1]), pair[0])
	}
	assert.NotEqual(t, normalizeQuery("get edge"), normalizeQuery("edge get"))
	assert.NotEqual(t, BuildKey("check", 10, ""), BuildKey("check", 20, ""))
	assert.NotEqual(t, BuildKey("check", 10, ""), BuildKey("check", 10, "aot"))
	assert.Regexp(t, `^search:[0-9a-f]{32}$`, BuildKey("check", 10, ""))
}

func TestLocalOnly(t *testing.T) {
	ctx := context.Background()
	c := New(nil, config.RedisConfig{LocalCacheSize: 8}, nil)

	_, ok := c.Get(ctx, "type", 10, "")
	assert.False(t, ok)

	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return result("type"), nil
	}
	got, hit, err := c.GetOrCompute(ctx, "type", 10, "", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "TYPE", got.Results[0].Label)

	got, hit, err = c.GetOrCompute(ctx, "TYPE", 10, "", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, got.TotalHits)
	assert.EqualValues(t, 1, calls.Load())

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.LocalHits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.Equal(t, 1, stats.LocalEntries)
	assert.False(t, stats.RemoteEnabled)

	require.NoError(t, c.Invalidate(ctx))
	assert.Zero(t, c.Stats().LocalEntries)
}

func TestComputeErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := New(nil, config.RedisConfig{}, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(ctx, "type", 10, "", func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Stats().LocalEntries)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	ctx := context.Background()
	c := New(nil, config.RedisConfig{}, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("node"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(ctx, "node", 10, "", compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestRemoteLevel(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m := metrics.New()
	writer := New(store, config.RedisConfig{CacheTTL: time.Minute}, m)
	writer.Set(ctx, "type", 10, "", result("type"))
	assert.Len(t, store.data, 1)

	reader := New(store, config.RedisConfig{}, m)
	got, ok := reader.Get(ctx, "type", 10, "")
	require.True(t, ok)
	assert.Equal(t, "TYPE", got.Results[0].Label)
	assert.EqualValues(t, 1, reader.Stats().RemoteHits)

	// promoted to the local level
	_, ok = reader.Get(ctx, "type", 10, "")
	require.True(t, ok)
	assert.EqualValues(t, 1, reader.Stats().LocalHits)

	require.NoError(t, reader.Invalidate(ctx))
	assert.Empty(t, store.data)
	_, ok = reader.Get(ctx, "type", 10, "")
	assert.False(t, ok)
}

func TestRemoteFailuresOpenBreaker(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	c := New(store, config.RedisConfig{}, nil)

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "type", 10, "")
		assert.False(t, ok)
	}
	stats := c.Stats()
	assert.True(t, stats.RemoteEnabled)
	assert.Equal(t, "open", stats.RemoteState)
	assert.EqualValues(t, 5, stats.Misses)
	assert.Error(t, c.Invalidate(ctx))
}
