// Package handler exposes index publishing over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/internal/auth"
	"github.com/3worlds/aot/internal/ingestion"
	"github.com/3worlds/aot/internal/ingestion/validator"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	apperrors "github.com/3worlds/aot/pkg/errors"
	"github.com/3worlds/aot/pkg/logger"
	"github.com/3worlds/aot/pkg/metrics"
)

// IndexPublisher is implemented by publisher.Publisher.
type IndexPublisher interface {
	Publish(ctx context.Context, source string, doc *jsindex.Document, report *member.Report) (*ingestion.PublishResponse, error)
	Republish(ctx context.Context, source string) error
	Sources(ctx context.Context) ([]ingestion.SourceInfo, error)
}

type Handler struct {
	publisher    IndexPublisher
	maxBodyBytes int64
	metrics      *metrics.Metrics
	collector    *analytics.Collector
	logger       *slog.Logger
}

// New creates the ingestion handler. m and collector may be nil.
func New(pub IndexPublisher, maxBodyBytes int64, m *metrics.Metrics, collector *analytics.Collector) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 16 << 20
	}
	return &Handler{
		publisher:    pub,
		maxBodyBytes: maxBodyBytes,
		metrics:      m,
		collector:    collector,
		logger:       slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/indexes/{source}", h.Publish)
	mux.HandleFunc("POST /api/v1/indexes/{source}/republish", h.Republish)
	mux.HandleFunc("GET /api/v1/indexes", h.List)
}

// authorized rejects keys scoped to other sources.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request, source string) bool {
	info := auth.KeyInfo(r.Context())
	if info == nil || info.Allows(source) {
		return true
	}
	err := apperrors.Newf(apperrors.ErrForbidden, "api key may not publish source %s", source)
	logger.FromContext(r.Context()).Warn("publish refused", "key", info.Name, "error", err)
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Message)
	return false
}

// Publish accepts a member-search-index.js body for the source named in
// the path.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	source := r.PathValue("source")
	if !h.authorized(w, r, source) {
		h.record(source, "rejected", 0, 0, start)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.record(source, "rejected", 0, 0, start)
			h.writeError(w, http.StatusRequestEntityTooLarge, "index body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	doc, report, err := validator.ValidateIndex(ctx, source, body)
	if err != nil {
		h.record(source, "rejected", 0, 0, start)
		h.writeRejection(w, err)
		log.Warn("index rejected", "source", source, "error", err)
		return
	}

	resp, err := h.publisher.Publish(ctx, source, doc, report)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		h.record(source, "failed", 0, 0, start)
		log.Error("index publishing failed",
			"source", source,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "index publishing failed")
		return
	}
	h.record(source, resp.Status, resp.Entries, report.Warnings, start)
	log.Info("index accepted",
		"source", source,
		"status", resp.Status,
		"entries", resp.Entries,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// writeRejection reports why an upload failed validation. Syntax and
// validation errors carry their details; anything else gets only a public
// message.
func (h *Handler) writeRejection(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	var syntaxErr *jsindex.SyntaxError
	switch {
	case errors.As(err, &validationErr):
		resp := map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		}
		if validationErr.Report != nil {
			resp["issues"] = validationErr.Report.Issues
		}
		h.writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &syntaxErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "malformed index",
			"line":   syntaxErr.Line,
			"column": syntaxErr.Column,
			"detail": syntaxErr.Msg,
		})
	default:
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err, "index could not be read"))
	}
}

func (h *Handler) Republish(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if !h.authorized(w, r, source) {
		return
	}
	if err := h.publisher.Republish(r.Context(), source); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("republish failed", "source", source, "error", err)
		}
		h.writeError(w, status, apperrors.PublicMessage(err, "republish failed"))
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"source": source, "status": "republished"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.publisher.Sources(r.Context())
	if err != nil {
		h.logger.Error("listing sources failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing sources failed")
		return
	}
	if sources == nil {
		sources = []ingestion.SourceInfo{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (h *Handler) record(source, status string, entries, warnings int, start time.Time) {
	if h.metrics != nil {
		h.metrics.IndexesPublished.WithLabelValues(strings.ToLower(status)).Inc()
	}
	if h.collector != nil {
		h.collector.Track(analytics.IndexEvent{
			Type:      analytics.EventIndexPublished,
			Source:    source,
			Status:    status,
			Entries:   entries,
			Warnings:  warnings,
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		})
	}
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
