// Package auth guards the publishing endpoints with API keys and per-key
// rate limits.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/3worlds/aot/internal/auth/apikey"
	"github.com/3worlds/aot/internal/auth/ratelimit"
	"github.com/3worlds/aot/pkg/logger"
)

type contextKey struct{}

// KeyValidator resolves a raw key to its metadata.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// RequireKey rejects requests without a valid API key. Keys can be given
// as Authorization: Bearer <key> or X-API-Key. Health endpoints are exempt.
func RequireKey(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			switch {
			case err == nil:
			case errors.Is(err, apikey.ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			default:
				logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKeyInfo(r.Context(), info)))
		})
	}
}

func WithKeyInfo(ctx context.Context, info *apikey.KeyInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// KeyInfo returns the validated key stored by RequireKey, or nil when keys
// are not required.
func KeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(contextKey{}).(*apikey.KeyInfo)
	return info
}

// RateLimit enforces the per-key limit of authenticated requests.
// Anonymous requests share the fallback limit keyed by the connection's
// remote address. X-Forwarded-For is client supplied and never used.
func RateLimit(limiter *ratelimit.Limiter, fallback int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			bucket, limit := "ip:"+clientAddr(r), fallback
			if info := KeyInfo(r.Context()); info != nil {
				bucket, limit = "key:"+info.ID, info.RateLimit
			}
			if ok, wait := limiter.Take(bucket, limit); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
