package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures by pipeline stage
type ErrorType string

const (
	// Fetcher errors
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeParsing   ErrorType = "parsing"

	// Processing errors
	ErrorTypeAnalysis ErrorType = "analysis"
	ErrorTypeUpload   ErrorType = "upload"

	// State store errors
	ErrorTypeCorruptState ErrorType = "corrupt_state"
	ErrorTypePersistence  ErrorType = "persistence"

	// Reporting errors
	ErrorTypeNotification ErrorType = "notification"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error is a classified pipeline error. Code carries the HTTP status for
// errors originating from an API call, 0 otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// WithCode attaches an HTTP status code
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// TypeOf returns the classification of err, or ErrorTypeUnknown when err is
// not a pipeline error
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err is a pipeline error of the given type
func IsType(err error, t ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == t
}

// IsRetryable checks if an error type should be retried within a run.
// Pipeline-stage failures (analysis, upload, state) are never retried in
// process; the item simply stays uncommitted and retries on the next
// scheduled run.
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
