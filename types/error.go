package types

import "fmt"

// ErrorCode represents a unified error code across the coordination service.
type ErrorCode string

// Coordination error codes
const (
	ErrInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrUnknownAgent         ErrorCode = "UNKNOWN_AGENT"
	ErrNotParticipant       ErrorCode = "NOT_PARTICIPANT"
	ErrSessionClosed        ErrorCode = "SESSION_CLOSED"
	ErrEvaluatorUnavailable ErrorCode = "EVALUATOR_UNAVAILABLE"
	ErrDeliveryPartial      ErrorCode = "DELIVERY_PARTIAL_FAILURE"
	ErrInternal             ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given coordination error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
