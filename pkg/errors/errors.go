package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFetch         ErrorCategory = "fetch"
	CategoryWrite         ErrorCategory = "write"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryMatching      ErrorCategory = "matching"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Fetch errors
	CodeQueryFailed ErrorCode = "query_failed"
	CodeScanFailed  ErrorCode = "scan_failed"

	// Write errors
	CodeWriteFailed   ErrorCode = "write_failed"
	CodeWriteConflict ErrorCode = "write_conflict"
	CodePartialApply  ErrorCode = "partial_apply"
	CodeDeleteFailed  ErrorCode = "delete_failed"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Matching errors
	CodeMatchingFailed   ErrorCode = "matching_failed"
	CodeDataInconsistent ErrorCode = "data_inconsistent"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all reconciliation engine errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FetchError creates an error for a failed read query. Fetch failures abort a
// matching run with no partial results; re-invoking the run is always safe
// because the matching phase is side-effect-free.
func FetchError(operation string, err error) *EngineError {
	return Wrap(err, CategoryFetch, CodeQueryFailed,
		fmt.Sprintf("failed to fetch %s", operation)).
		WithSuggestion("the matching phase is side-effect-free; retry the whole run").
		WithContext("operation", operation)
}

// WriteError creates an error for a failed store mutation
func WriteError(code ErrorCode, operation string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeWriteConflict:
		message = fmt.Sprintf("write conflict during %s: record already reconciled", operation)
		suggestion = "another run may have accepted this record concurrently; refresh and re-check"
	case CodeDeleteFailed:
		message = fmt.Sprintf("failed to delete during %s", operation)
		suggestion = "verify the record exists and retry"
	case CodePartialApply:
		message = fmt.Sprintf("acceptance partially applied during %s", operation)
		suggestion = "check the pair's reconciliation status and repair before retrying"
	default:
		message = fmt.Sprintf("write failed during %s", operation)
		suggestion = "retry the operation; acceptance and reversal are idempotent"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryWrite, code, message)
	} else {
		result = New(CategoryWrite, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD or YYYY-MM-DD HH:MM:SS"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// MatchingError creates a matching-related error
func MatchingError(code ErrorCode, operation string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeDataInconsistent:
		message = fmt.Sprintf("data inconsistency detected during %s", operation)
		suggestion = "verify data integrity and resolve inconsistencies"
	default:
		message = fmt.Sprintf("matching failed during %s", operation)
		suggestion = "try adjusting matching tolerances or check data quality"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryMatching, code, message)
	} else {
		result = New(CategoryMatching, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *EngineError {
	var result *EngineError
	message := fmt.Sprintf("unexpected error during %s", operation)

	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// IsEngineError checks if an error is an EngineError
func IsEngineError(err error) bool {
	_, ok := err.(*EngineError)
	return ok
}

// AsEngineError extracts an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// HasCategory reports whether err carries an EngineError of the given category
func HasCategory(err error, category ErrorCategory) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Category == category
}

// HasCode reports whether err carries an EngineError with the given code
func HasCode(err error, code ErrorCode) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Code == code
}

// WrapIfNeeded wraps an error if it's not already an EngineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	if engineErr, ok := AsEngineError(err); ok {
		return engineErr
	}

	return Wrap(err, category, code, message)
}
