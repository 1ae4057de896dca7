package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carebridge/carebridge/internal/errs"
)

// envelope is the standard response shape: {message, data?}.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Message: message, Data: data})
}

// writeErr maps sentinel errors onto HTTP statuses. Anything unrecognized is
// a 500 with a generic message; internals never leak to clients.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidScope):
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusUnauthorized, "unauthorized", nil)
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, errs.ErrAlreadyExists):
		writeJSON(w, http.StatusBadRequest, "already exists", nil)
	case errors.Is(err, errs.ErrCrypto):
		writeJSON(w, http.StatusBadRequest, "could not process encrypted payload", nil)
	default:
		writeJSON(w, http.StatusInternalServerError, "unexpected error", nil)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
