// Package handler contains the relay's HTTP handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Decode the JSON body
// 2. Call the service
// 3. Pick the response shape the endpoint's clients expect
//
// The relay endpoints (/run, /ask-ai) have a contract of their own: a failure
// of a dependency is still a 200 with the failure described in the body, so
// the editor frontend can print it like any other output. Only a bad request
// from the caller gets a 4xx.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/ai-code-relay/internal/apperror"
)

// maxBodyBytes bounds request bodies; a little over the service's code limit.
const maxBodyBytes = 1 << 20

// warningPrefix marks relay-generated error text in otherwise free-form output.
const warningPrefix = "⚠️ "

// ErrorResponse is the error format of the non-relay JSON API (/api/...).
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
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a size-limited JSON body into dst.
// The returned error is a validation AppError carrying a caller-facing message.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("", fmt.Sprintf("request body must be %d bytes or less", tooLarge.Limit))
		}
		return apperror.ValidationFailed("", "invalid JSON request body")
	}
	return nil
}

// relayFailure turns a service error into the status and message for a relay endpoint.
//
// Validation errors → 400. Everything else is a dependency failure and stays a 200;
// the message is the AppError's text, or a generic one for unexpected errors
// so internals never leak to the caller.
func relayFailure(err error, generic string) (int, string) {
	status := http.StatusOK
	if errors.Is(err, apperror.ErrValidation) {
		status = http.StatusBadRequest
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return status, warningPrefix + appErr.Message
	}
	return status, warningPrefix + generic
}

// writeError maps an error on the /api routes to an HTTP status and ErrorResponse.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: appErr.Message,
		})
		return
	}

	// NEVER expose internal error details (SQL, file paths) to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
