package backend

import (
	"errors"
	"fmt"
)

// BackendError represents an error from a backend operation
// It carries the HTTP status, the PostgREST error code when the server sent
// one, and the affected task id.
type BackendError struct {
	Operation  string // e.g., "FetchTasks", "UpdateTask"
	StatusCode int    // HTTP status code (0 if not an HTTP error)
	Code       string // PostgREST/Postgres error code, e.g. "42501"
	Message    string // Human-readable error message
	TaskID     int64  // Optional: affected task id
	Body       string // Optional: response body for debugging
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, msg)
}

// Unwrap returns the underlying error for error wrapping
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *BackendError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *BackendError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsAccessDenied returns true when the failure looks like a row-level
// security or permission restriction rather than an outage.
func (e *BackendError) IsAccessDenied() bool {
	return e.IsUnauthorized() || e.Code == "42501"
}

// IsServerError returns true if the error is a 5xx server error
func (e *BackendError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewBackendError creates a new BackendError
func NewBackendError(operation string, statusCode int, message string) *BackendError {
	return &BackendError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithTaskID adds the task id to the error for context
func (e *BackendError) WithTaskID(id int64) *BackendError {
	e.TaskID = id
	return e
}

// WithCode sets the server error code
func (e *BackendError) WithCode(code string) *BackendError {
	e.Code = code
	return e
}

// WithBody adds the response body to the error for debugging
func (e *BackendError) WithBody(body string) *BackendError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *BackendError) WithError(err error) *BackendError {
	e.Err = err
	return e
}

// IsAccessDenied reports whether err is a BackendError caused by an
// access-control restriction.
func IsAccessDenied(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.IsAccessDenied()
}

// ErrNotFound is wrapped by backends that report a missing task without an
// HTTP status.
var ErrNotFound = errors.New("task not found")

// IsNotFound reports whether err describes a missing task.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var be *BackendError
	return errors.As(err, &be) && be.IsNotFound()
}
