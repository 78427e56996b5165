package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"market-hunter/internal/database"
	"market-hunter/internal/logger"
	"market-hunter/internal/monitor"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps engine and store errors to HTTP statuses. Unknown errors are
// internal.
func statusOf(err error) int {
	switch {
	case errors.Is(err, monitor.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, monitor.ErrMonitorNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, monitor.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, monitor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, database.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", logger.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
