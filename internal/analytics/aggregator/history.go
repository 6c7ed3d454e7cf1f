package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultHistory = 12
	maxHistory     = 500
)

// HistoryLister lists stored snapshots. *Store implements it.
type HistoryLister interface {
	History(ctx context.Context, limit int) ([]Snapshot, error)
}

// HistoryHandler serves GET /api/v1/analytics/history?limit=N.
func HistoryHandler(store HistoryLister) http.HandlerFunc {
	logger := slog.Default().With("component", "analytics-history")
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistory
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxHistory {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": "limit must be an integer between 1 and " + strconv.Itoa(maxHistory),
				})
				return
			}
			limit = n
		}
		snaps, err := store.History(r.Context(), limit)
		if err != nil {
			logger.Error("listing snapshots failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshots unavailable"})
			return
		}
		if snaps == nil {
			snaps = []Snapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
