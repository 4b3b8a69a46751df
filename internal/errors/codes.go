// Package errors provides structured error handling for sharedwatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (watched paths)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (loop, wake handles, event sources)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates errors resolving or reading watched paths.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates runtime failures inside the watch core.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the process cannot keep watching.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the service continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodePathNotFound   = "ERR_201_PATH_NOT_FOUND"
	ErrCodeNotADirectory  = "ERR_202_NOT_A_DIRECTORY"
	ErrCodePathPermission = "ERR_203_PATH_PERMISSION"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPattern = "ERR_402_INVALID_PATTERN"
	ErrCodeNilCallback    = "ERR_403_NIL_CALLBACK"

	// Internal errors (500-599)
	ErrCodeWakeAllocation = "ERR_501_WAKE_ALLOCATION"
	ErrCodeLoopClosed     = "ERR_502_LOOP_CLOSED"
	ErrCodeSourceStart    = "ERR_503_SOURCE_START"
	ErrCodeServiceClosed  = "ERR_504_SERVICE_CLOSED"
	ErrCodeInternal       = "ERR_599_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLoopClosed, ErrCodeServiceClosed:
		return SeverityFatal
	case ErrCodeWakeAllocation:
		// The watcher stays unwatched and the caller may retry later.
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeWakeAllocation, ErrCodeSourceStart:
		return true
	default:
		return false
	}
}
