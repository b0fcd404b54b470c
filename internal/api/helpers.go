// Package api provides HTTP handlers for the NetWarden REST API. It
// includes handlers for device management, monitor control, alerts, and
// guarded action submission.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"netwarden/internal/models"
)

// writeJSON encodes v as the response body with the given status code
func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// errorStatus maps the core's error taxonomy onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidSpec), errors.Is(err, models.ErrDuplicateIP):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, models.ErrExpired):
		return http.StatusGone
	case errors.Is(err, models.ErrBlocked):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends the error as a JSON body with the mapped status
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	writeJSON(w, logger, errorStatus(err), map[string]string{"error": err.Error()})
}
