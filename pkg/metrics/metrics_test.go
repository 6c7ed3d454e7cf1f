package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNewUsesIsolatedRegistry(t *testing.T) {
	a, b := New(), New()
	a.CacheMissesTotal.Inc()
	assert.Contains(t, scrape(t, a), "search_cache_misses_total 1")
	assert.Contains(t, scrape(t, b), "search_cache_misses_total 0")
}

func TestRecordSource(t *testing.T) {
	m := New()
	m.RecordSource("aot", 85, nil)
	m.RecordSource("aot", 0, errors.New("parse"))
	body := scrape(t, m)
	assert.Contains(t, body, `index_source_entries{source="aot"} 85`)
	assert.Contains(t, body, `index_loads_total{source="aot",status="ok"} 1`)
	assert.Contains(t, body, `index_loads_total{source="aot",status="error"} 1`)

	var nilMetrics *Metrics
	nilMetrics.RecordSource("aot", 1, nil)
}

func TestHandlerServesGauges(t *testing.T) {
	m := New()
	m.ActiveSources.Set(2)
	assert.Contains(t, scrape(t, m), "index_active_sources 2")
}

func TestServerRoutes(t *testing.T) {
	m := New()
	m.CacheMissesTotal.Inc()
	h := NewServer(0, m).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "search_cache_misses_total 1")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GET /metrics")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
