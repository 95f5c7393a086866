// Package httpserver contains the HTTP handlers and middleware: the
// public catalog API, the admin console with its job-control endpoints,
// and the auth layers gating both.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// problemDetail is the RFC 7807 document every non-2xx response body
// carries.
type problemDetail struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem emits a problem document with the standard title for the
// status code.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// writeValidation emits a 400 problem document carrying per-field
// errors.
func writeValidation(w http.ResponseWriter, detail string, errs []fieldError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(problemDetail{
		Type:   "about:blank",
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: detail,
		Errors: errs,
	})
}

// writeError maps a domain error onto its HTTP status and emits the
// problem document. Unrecognized errors become an opaque 500; the real
// error goes to the request log only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamFailure):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed", slog.Any("error", err))
		writeProblem(w, status, "internal error")
		return
	}
	writeProblem(w, status, errDetail(err))
}

// errDetail strips the sentinel prefix a wrapped domain error carries so
// the problem document shows only the human-readable part.
func errDetail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		domain.ErrInvalidArgument,
		domain.ErrUnauthorized,
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrUpstreamFailure,
		domain.ErrUpstreamTimeout,
	} {
		if prefix := sentinel.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return msg[len(prefix):]
		}
	}
	return msg
}
