package errors

import (
	stderrors "errors"
	"fmt"
)

// WatchError is the structured error type returned across package boundaries.
type WatchError struct {
	// Code is the unique error code (e.g., "ERR_201_PATH_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the same call may succeed later.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *WatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WatchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a WatchError with the same code.
func (e *WatchError) Is(target error) bool {
	if t, ok := target.(*WatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *WatchError) WithDetail(key, value string) *WatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *WatchError) WithSuggestion(suggestion string) *WatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a WatchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *WatchError {
	return &WatchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WatchError from an existing error, reusing its message.
func Wrap(code string, err error) *WatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *WatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// PathError creates an error for a watched path that cannot be resolved.
func PathError(path string, cause error) *WatchError {
	return New(ErrCodePathNotFound, fmt.Sprintf("watch path not found: %s", path), cause).
		WithDetail("path", path)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *WatchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *WatchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err carries a retryable WatchError.
func IsRetryable(err error) bool {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// IsFatal reports whether err carries a fatal WatchError.
func IsFatal(err error) bool {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first WatchError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Code
	}
	return ""
}
