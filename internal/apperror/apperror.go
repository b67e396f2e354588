// Package apperror defines the error kinds every layer agrees on.
//
// Services return these; handlers map them to HTTP status codes. A kind is
// checked with errors.Is against one of the sentinel values below, so callers
// can wrap an *AppError with fmt.Errorf("...: %w", err) without losing it.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")

	// ErrUpstreamConstraint marks a row the store refused because of a
	// foreign-key or format constraint. It is also an ErrValidation: the
	// request carried something the store could not accept.
	ErrUpstreamConstraint = fmt.Errorf("upstream constraint violation: %w", ErrValidation)
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// ConflictMessage is Conflict with a caller-supplied message, used when the
// store's own wording should reach the client.
func ConflictMessage(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// UpstreamConstraint reports a store-side constraint rejection. The store's
// message is forwarded as-is when there is one.
func UpstreamConstraint(message string) *AppError {
	if strings.TrimSpace(message) == "" {
		message = "the store rejected the write"
	}
	return &AppError{
		Err:     ErrUpstreamConstraint,
		Message: message,
	}
}

// Internal hides the cause from clients. Log the cause before calling it.
func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
	}
}

// PartialFailure is returned by a multi-step operation that failed after
// some of its steps had already been applied. Nothing is rolled back; the
// completed steps are listed so the caller knows what landed.
type PartialFailure struct {
	Saga      string
	Step      string   // the step that failed
	Completed []string // steps that succeeded before it, in order
	Err       error    // classified error of the failing step
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: step %q failed after [%s]: %v",
		e.Saga, e.Step, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
