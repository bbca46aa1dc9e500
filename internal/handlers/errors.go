package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusForError maps the error taxonomy to HTTP status codes.
func statusForError(err error) (int, string) {
	if errors.Is(err, apperr.ErrDuplicateID) {
		return http.StatusConflict, "duplicate_id"
	}
	switch apperr.Kind(err) {
	case apperr.ErrInvalidArgument:
		return http.StatusBadRequest, "invalid_argument"
	case apperr.ErrDimensionMismatch:
		return http.StatusBadRequest, "dimension_mismatch"
	case apperr.ErrModelUnavailable:
		return http.StatusServiceUnavailable, "model_unavailable"
	case apperr.ErrStoreUnavailable:
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, ""
}

// handleError logs err and writes the mapped status. Client errors carry the error text;
// server errors only defaultMsg.
func handleError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	status, kind := statusForError(err)
	msg := defaultMsg
	switch {
	case status < http.StatusInternalServerError:
		logger.WarnContext(ctx, "request rejected", "status", status, "error", err)
		msg = err.Error()
	case kind != "":
		logger.ErrorContext(ctx, "dependency unavailable", "status", status, "error", err)
		msg = fmt.Sprintf("%s: %s", defaultMsg, kind)
	default:
		logger.ErrorContext(ctx, "request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Kind: kind})
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeJSON encodes v with status 200.
func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
