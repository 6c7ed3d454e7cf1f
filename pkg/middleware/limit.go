package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"
)

// MaxInFlight answers 503 once n requests are already being served.
// Health probes are never shed. n <= 0 disables the limit.
func MaxInFlight(n int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		sem := semaphore.NewWeighted(int64(n))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !sem.TryAcquire(1) {
				slog.Warn("request shed", "method", r.Method, "path", r.URL.Path, "limit", n)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"too many concurrent requests"}`))
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
