// Package errors defines the structured error taxonomy shared by the
// extraction pipeline, calendar access and the confirmation flow.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for routing user-facing replies.
type ErrorCode string

const (
	// ErrCodeExtractionFailed indicates both extractors failed to produce a candidate.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	// ErrCodeAuthRequired indicates calendar credentials are missing, expired or unrefreshable.
	ErrCodeAuthRequired ErrorCode = "AUTH_REQUIRED"
	// ErrCodeCalendarAPI indicates a failure from the calendar provider.
	ErrCodeCalendarAPI ErrorCode = "CALENDAR_API"
	// ErrCodeCacheMiss indicates a confirmation action arrived for an expired or missing session.
	ErrCodeCacheMiss ErrorCode = "CACHE_MISS"
	// ErrCodeValidation indicates an internal candidate-validation failure.
	ErrCodeValidation ErrorCode = "VALIDATION"
)

// Error is a code-carrying error for schedule operations.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the error code, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsAuth reports whether err is an authorization error.
func IsAuth(err error) bool {
	return CodeOf(err) == ErrCodeAuthRequired
}

// IsCacheMiss reports whether err is a missing-session error.
func IsCacheMiss(err error) bool {
	return CodeOf(err) == ErrCodeCacheMiss
}

// IsExtraction reports whether err is an extraction failure.
func IsExtraction(err error) bool {
	return CodeOf(err) == ErrCodeExtractionFailed
}

// IsCalendarAPI reports whether err is a calendar provider failure.
func IsCalendarAPI(err error) bool {
	return CodeOf(err) == ErrCodeCalendarAPI
}
