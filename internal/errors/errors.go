package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Nami error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION" // 409
	ErrBusy              ErrorCode = "BUSY"               // 409
	ErrFileTooLarge      ErrorCode = "FILE_TOO_LARGE"     // 413
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrUpstream          ErrorCode = "UPSTREAM"           // 502
)

// NamiError represents a structured error with code, status, and details.
type NamiError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *NamiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *NamiError {
	return &NamiError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *NamiError {
	return &NamiError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidTransition creates a 409 error for a wizard action that is not
// allowed on the current step.
func NewInvalidTransition(action, step string) *NamiError {
	return &NamiError{
		Code:    ErrInvalidTransition,
		Status:  409,
		Message: fmt.Sprintf("%s is not allowed on step %s", action, step),
		Details: map[string]any{"action": action, "step": step},
	}
}

// NewBusy creates a 409 error when an operation is already in flight.
func NewBusy(what string) *NamiError {
	return &NamiError{
		Code:    ErrBusy,
		Status:  409,
		Message: fmt.Sprintf("%s already in progress", what),
	}
}

// NewFileTooLarge creates a 413 error when an import file exceeds the limit.
func NewFileTooLarge(max int64) *NamiError {
	return &NamiError{
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds maximum size of %d bytes", max),
		Details: map[string]any{"max_bytes": max},
	}
}

// NewCancelled creates a 499 error when the caller's context is done.
func NewCancelled(op string) *NamiError {
	return &NamiError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewUpstream creates a 502 error for a failed call to an external service.
// The cause is kept out of the message; callers log it separately.
func NewUpstream(service string) *NamiError {
	return &NamiError{
		Code:    ErrUpstream,
		Status:  502,
		Message: fmt.Sprintf("%s request failed", service),
		Details: map[string]any{"service": service},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *NamiError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &NamiError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a NamiError with the given code.
func Is(err error, code ErrorCode) bool {
	var nErr *NamiError
	if stderrors.As(err, &nErr) {
		return nErr.Code == code
	}
	return false
}
