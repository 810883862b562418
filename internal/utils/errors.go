package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrNotAuthenticatedBase is matched with errors.Is by callers that need to
// distinguish a missing session from other failures.
var ErrNotAuthenticatedBase = errors.New("user not authenticated")

// ErrTaskNotFound creates an error when a task id is not in the current set
func ErrTaskNotFound(id int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task %d not found", id),
		Suggestion: "Run 'priorityforge list' (or 'list --history') to see task ids",
	}
}

// ErrNotAuthenticated is returned when a remote write needs a user id and
// the session has none
func ErrNotAuthenticated() error {
	return &ErrorWithSuggestion{
		Err:        ErrNotAuthenticatedBase,
		Suggestion: "Sign in with 'priorityforge login' or remove the remote section from the config to work locally",
	}
}

// ErrInvalidUrgency creates an error for urgency values outside 1-5
func ErrInvalidUrgency(urgency int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid urgency %d", urgency),
		Suggestion: "Urgency must be between 1 (low) and 5 (high)",
	}
}

// ErrInvalidDifficulty creates an error for difficulty values outside 1-5
func ErrInvalidDifficulty(difficulty int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid difficulty %d", difficulty),
		Suggestion: "Difficulty must be between 1 (easy) and 5 (hard)",
	}
}

// ErrEmptyTitle creates an error for a missing task title
func ErrEmptyTitle() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task title is required"),
		Suggestion: "Give the task a short, non-empty title",
	}
}

// ErrInvalidDate creates an error for invalid date formats
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date format: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD format (e.g., 2026-01-15)",
	}
}

// ErrBackendOffline creates an error when the remote backend is unreachable
func ErrBackendOffline(reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "DNS") || strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and the remote url in the config"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the server is running and accessible"
	} else if strings.Contains(reason, "timeout") || strings.Contains(reason, "deadline") {
		suggestion = "The server may be slow or unreachable. Try again later"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote backend is offline: %s", reason),
		Suggestion: suggestion,
	}
}

// ErrConfigFileNotFound creates an error when config file is not found
func ErrConfigFileNotFound(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("config file not found at %s", path),
		Suggestion: "Run 'priorityforge config init' to create a default configuration file",
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check the config file ('priorityforge config path') and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// UserMessage returns the single-line message shown in the error banner,
// without the suggestion block.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ews *ErrorWithSuggestion
	if errors.As(err, &ews) && ews.Err != nil {
		return ews.Err.Error()
	}
	return err.Error()
}
