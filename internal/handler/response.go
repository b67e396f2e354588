package handler

// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "community not found with id ..."}
//
// with "field" added for input errors and "partial"/"completed" added when a
// multi-step operation failed after some of its writes had landed.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/slapit/slapit-api/internal/apperror"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error     string   `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message   string   `json:"message"` // Human-readable description
	Field     string   `json:"field,omitempty"`
	Partial   bool     `json:"partial,omitempty"`
	Completed []string `json:"completed,omitempty"`
	ID        string   `json:"id,omitempty"` // id of an entity a partial failure left behind
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all that is left is to log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status and error type.
// UpstreamConstraint is checked before Validation because it wraps it.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrUpstreamConstraint):
		return http.StatusBadRequest, "upstream_constraint"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a service error to its HTTP status and sends it. Errors
// that are not an *apperror.AppError never reach the client verbatim.
func writeError(w http.ResponseWriter, err error) {
	writeErrorWithID(w, err, "")
}

// writeErrorWithID is writeError for create operations, which may return a
// partially created entity together with the error.
func writeErrorWithID(w http.ResponseWriter, err error, id string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, errorType := statusFor(err)
	resp := ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	}

	var partial *apperror.PartialFailure
	if errors.As(err, &partial) {
		resp.Partial = true
		resp.Completed = partial.Completed
		resp.ID = id
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON request body into dst. Unknown fields are
// ignored; a malformed or oversized body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("body", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}

type messageResponse struct {
	Message string `json:"message"`
}

type okResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}
