package handler

// RESPONSE HELPERS:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// ERROR SHAPES:
// Most errors have the same JSON shape:
//   {"error": "validation_error", "message": "validation failed: title ..."}
//
// Two are answered with a bare status and no body at all, which is what the
// list clients have always received:
//   404 Not Found     → the list doesn't exist
//   401 Unauthorized  → the list exists but the requester may not modify it

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tasklists/internal/apperror"
)

// ErrorResponse is the standard error format returned by API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "validation_error")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP response.
//
// ERROR MAPPING:
//
//	apperror.ErrNotFound     → 404, empty body
//	apperror.ErrUnauthorized → 401, empty body
//	apperror.ErrValidation   → 400
//	apperror.ErrForbidden    → 403
//	apperror.ErrConflict     → 409
//	anything else            → 500 {"error":"internal_error","message":<err>}
//
// errors.Is walks the whole chain, so service-level wrapping like
// fmt.Errorf("updating list: %w", err) doesn't hide the sentinel.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		return
	case errors.Is(err, apperror.ErrUnauthorized):
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
		return
	}

	// Store failure: the caller gets the error text, nothing is retried.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}

// writeBadRequest answers a request whose body could not be decoded.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}
