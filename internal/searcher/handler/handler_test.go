package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/cache"
	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/metrics"
)

type fixture struct {
	mux   *http.ServeMux
	cache *cache.QueryCache
	agg   *analytics.Aggregator
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	router, err := shard.NewRouter(config.IndexerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	doc, err := jsindex.ParseFile(context.Background(), "../../jsindex/testdata/member-search-index.js")
	require.NoError(t, err)
	require.NoError(t, router.Load(context.Background(), "aot", doc.Entries))

	f := &fixture{mux: http.NewServeMux(), agg: analytics.NewAggregator(nil)}
	opts := Options{Aggregator: f.agg, Metrics: metrics.New()}
	if withCache {
		f.cache = cache.New(nil, config.RedisConfig{}, nil)
		opts.Cache = f.cache
	}
	New(executor.NewSharded(router, 0), router, opts, 5, 20).Routes(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestSearch(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=checkArchetype")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result executor.SearchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "checkArchetype", result.Query)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "checkArchetype(Tree<? extends TreeNode>)", result.Results[0].Label)
	assert.Equal(t, member.KindMethod, result.Results[0].Kind)

	// second identical query is served from the cache
	rec = f.do(t, http.MethodGet, "/api/v1/search?q=checkarchetype")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, f.cache.Stats().LocalHits)
}

func TestSearchLimitClamped(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=kind:field&limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	var result executor.SearchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Len(t, result.Results, 20)
	assert.Greater(t, result.TotalHits, 20)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=kind:field")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Len(t, result.Results, 5)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=%20",
		"/api/v1/search?q=node&limit=0",
		"/api/v1/search?q=node&limit=ten",
		"/api/v1/search?q=kind:interface",
	} {
		rec := f.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`, target)
	}
}

func TestSearchUnknownSource(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=node&source=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSources(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []SourceSummary `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "aot", body.Sources[0].Name)
	assert.EqualValues(t, 85, body.Sources[0].Entries)
	assert.NotZero(t, body.Sources[0].Generation)
}

func TestSourceEntries(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/sources/aot/entries?package=au.edu.anu.aot.errorMessaging&class=ErrorListListener")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int            `json:"count"`
		Entries []member.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 3, body.Count)
	for _, e := range body.Entries {
		assert.Equal(t, "ErrorListListener", e.Class)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/sources/missing/entries")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourceIndexRoundTrips(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/sources/aot/member-search-index.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "memberSearchIndex = ["))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	doc, err := jsindex.Parse(context.Background(), rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 85)
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/v1/search?q=node")
	rec := f.do(t, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hit_rate"`)

	rec = f.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.cache.Stats().LocalEntries)

	rec = f.do(t, http.MethodGet, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	disabled := newFixture(t, false)
	rec = disabled.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	f.agg.Record(analytics.SearchEvent{Type: analytics.EventSearch, Query: "node", TotalHits: 4})
	rec := f.do(t, http.MethodGet, "/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats analytics.AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats.TotalSearches)
}
