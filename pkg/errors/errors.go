// Package errors defines the error kinds the services share and how each
// one maps to an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrMalformedIndex    = errors.New("malformed member search index")
	ErrSourceNotFound    = errors.New("index source not found")
	ErrSourceUnavailable = errors.New("index source unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// statuses is checked in order; the first kind err matches wins.
var statuses = []struct {
	kind   error
	status int
}{
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrMalformedIndex, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrSourceNotFound, http.StatusNotFound},
	{ErrSourceUnavailable, http.StatusServiceUnavailable},
}

// AppError pairs an error kind with a message safe to show to clients.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func Newf(kind error, format string, args ...any) *AppError {
	return &AppError{Err: kind, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatusCode maps err to a status by its kind, defaulting to 500.
func HTTPStatusCode(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.kind) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns what a client may be told about err: an AppError's
// message, the text of a not-found error, or fallback for anything else.
func PublicMessage(err error, fallback string) string {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case errors.Is(err, ErrSourceNotFound):
		return err.Error()
	default:
		return fallback
	}
}
