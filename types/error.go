package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Routing and coordination error codes
const (
	ErrClassification      ErrorCode = "CLASSIFICATION_ERROR"
	ErrAgentTimeout        ErrorCode = "AGENT_TIMEOUT"
	ErrAgentError          ErrorCode = "AGENT_ERROR"
	ErrHandoffLoopExceeded ErrorCode = "HANDOFF_LOOP_EXCEEDED"
	ErrTransportDisconnect ErrorCode = "TRANSPORT_DISCONNECT"
)

// Infrastructure error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnknownCapability  ErrorCode = "UNKNOWN_CAPABILITY"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Capability IntentLabel `json:"capability,omitempty"`
	Retryable  bool        `json:"retryable"`
	HTTPStatus int         `json:"-"`
	Cause      error       `json:"-"`
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

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithCapability records the capability the error relates to.
func (e *Error) WithCapability(label IntentLabel) *Error {
	e.Capability = label
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithHTTPStatus sets the status the API layer answers with.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
