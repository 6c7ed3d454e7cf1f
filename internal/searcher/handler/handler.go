// Package handler exposes member search over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/internal/indexer"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/cache"
	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/internal/searcher/parser"
	apperrors "github.com/3worlds/aot/pkg/errors"
	"github.com/3worlds/aot/pkg/logger"
	"github.com/3worlds/aot/pkg/metrics"
	"github.com/3worlds/aot/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int, source string) (*executor.SearchResult, error)
}

// Catalog resolves loaded sources. shard.Router implements it.
type Catalog interface {
	Sources() []string
	Route(name string) (*indexer.Engine, error)
}

// Options carries the optional collaborators of a Handler; nil fields
// switch the matching feature off.
type Options struct {
	Cache      *cache.QueryCache
	Collector  *analytics.Collector
	Aggregator *analytics.Aggregator
	Metrics    *metrics.Metrics
	Tracer     *tracing.Tracer
}

type Handler struct {
	executor     SearchExecutor
	catalog      Catalog
	opts         Options
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(exec SearchExecutor, catalog Catalog, opts Options, defaultLimit, maxResults int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxResults < defaultLimit {
		maxResults = defaultLimit
	}
	return &Handler{
		executor:     exec,
		catalog:      catalog,
		opts:         opts,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/sources", h.ListSources)
	mux.HandleFunc("GET /api/v1/sources/{source}/entries", h.SourceEntries)
	mux.HandleFunc("GET /api/v1/sources/{source}/member-search-index.js", h.SourceIndex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.opts.Tracer.Start(r.Context(), "search")
	defer h.opts.Tracer.Finish(span)
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}
	source := r.URL.Query().Get("source")
	span.SetAttr("query", query)
	span.SetAttr("source", source)

	plan, err := parser.Parse(query)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	compute := func() (*executor.SearchResult, error) {
		_, execSpan := tracing.StartChildSpan(ctx, "execute")
		defer execSpan.End()
		return h.executor.Execute(ctx, plan, limit, source)
	}
	var result *executor.SearchResult
	cacheHit := false
	if h.opts.Cache != nil {
		result, cacheHit, err = h.opts.Cache.GetOrCompute(ctx, query, limit, source, compute)
	} else {
		result, err = compute()
	}
	latency := time.Since(start)
	if err != nil {
		h.observe("error", cacheHit, latency, 0)
		log.Error("search execution failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheHit, latency, len(result.Results))
	span.SetAttr("total_hits", result.TotalHits)
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, plan, source, result, cacheHit, latency)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(resultType string, cacheHit bool, latency time.Duration, returned int) {
	m := h.opts.Metrics
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	m.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
	if resultType != "error" {
		m.SearchResultsCount.Observe(float64(returned))
	}
}

func (h *Handler) track(ctx context.Context, plan *parser.QueryPlan, source string, result *executor.SearchResult, cacheHit bool, latency time.Duration) {
	if h.opts.Collector == nil {
		return
	}
	eventType := analytics.EventCacheMiss
	switch {
	case result.TotalHits == 0:
		eventType = analytics.EventZeroResult
	case cacheHit:
		eventType = analytics.EventCacheHit
	}
	event := analytics.SearchEvent{
		Type:        eventType,
		Query:       plan.RawQuery,
		Terms:       plan.Terms,
		Source:      source,
		TotalHits:   result.TotalHits,
		Returned:    len(result.Results),
		LatencyMs:   latency.Milliseconds(),
		CacheHit:    cacheHit,
		SourceCount: len(h.catalog.Sources()),
		Timestamp:   time.Now().UTC(),
		RequestID:   logger.RequestID(ctx),
	}
	if len(result.Results) > 0 {
		event.TopKey = result.Results[0].Key
	}
	h.opts.Collector.Track(event)
}

// SourceSummary describes one loaded source.
type SourceSummary struct {
	Name       string `json:"name"`
	Entries    int64  `json:"entries"`
	Generation int64  `json:"generation"`
}

func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Sources()
	summaries := make([]SourceSummary, 0, len(names))
	for _, name := range names {
		engine, err := h.catalog.Route(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, SourceSummary{
			Name:       name,
			Entries:    engine.TotalDocs(),
			Generation: engine.Generation(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sources": summaries})
}

// SourceEntries lists the entries of a source in index order, optionally
// restricted to an exact package and class.
func (h *Handler) SourceEntries(w http.ResponseWriter, r *http.Request) {
	engine, err := h.catalog.Route(r.PathValue("source"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	pkg := r.URL.Query().Get("package")
	class := r.URL.Query().Get("class")
	entries := make([]member.Entry, 0)
	for _, e := range engine.Entries() {
		if pkg != "" && e.Package != pkg {
			continue
		}
		if class != "" && e.Class != class {
			continue
		}
		entries = append(entries, e)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"source":  engine.Name(),
		"count":   len(entries),
		"entries": entries,
	})
}

// SourceIndex re-renders a source as a member-search-index.js file.
func (h *Handler) SourceIndex(w http.ResponseWriter, r *http.Request) {
	engine, err := h.catalog.Route(r.PathValue("source"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	entries := append([]member.Entry(nil), engine.Entries()...)
	member.Sort(entries)
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("ETag", fmt.Sprintf(`"%s-%d"`, engine.Name(), engine.Generation()))
	if err := jsindex.Render(w, jsindex.NewDocument(entries)); err != nil {
		h.logger.Error("failed to render index", "source", engine.Name(), "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.opts.Cache.Stats()
	hits := stats.LocalHits + stats.RemoteHits
	total := hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"levels":   stats,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.opts.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Analytics serves the statistics of this node's searches.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.opts.Aggregator == nil {
		h.writeError(w, http.StatusNotFound, "analytics are disabled")
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Aggregator.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError reports err with its mapped status. Only AppError
// messages and not-found errors reach the client verbatim.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.writeError(w, http.StatusGatewayTimeout, "search timed out")
		return
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err, "search failed"))
}
