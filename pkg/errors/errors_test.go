package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Newf(ErrInvalidInput, "odd"), http.StatusBadRequest},
		{"wrapped app error", fmt.Errorf("search: %w", Newf(ErrSourceNotFound, "source %q is not loaded", "x")), http.StatusNotFound},
		{"missing source", fmt.Errorf("routing: %w", ErrSourceNotFound), http.StatusNotFound},
		{"malformed", fmt.Errorf("parse: %w", ErrMalformedIndex), http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unavailable", ErrSourceUnavailable, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"nil", nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrMalformedIndex, "line %d", 3)
	assert.ErrorIs(t, err, ErrMalformedIndex)
	assert.Equal(t, "malformed member search index: line 3", err.Error())
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "all 2 sources failed",
		PublicMessage(fmt.Errorf("x: %w", Newf(ErrSourceUnavailable, "all 2 sources failed")), "search failed"))
	assert.Equal(t, `source "rscs": index source not found`,
		PublicMessage(fmt.Errorf("source %q: %w", "rscs", ErrSourceNotFound), "search failed"))
	assert.Equal(t, "search failed", PublicMessage(context.DeadlineExceeded, "search failed"))
}
