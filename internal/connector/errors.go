package connector

import (
	"fmt"
	"net/http"
)

// ErrorType classifies connector errors for appropriate handling.
type ErrorType string

const (
	// ErrorTypeAuth indicates authentication or authorization failure (401, 403)
	ErrorTypeAuth ErrorType = "auth_error"

	// ErrorTypeNotFound indicates resource not found (404)
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation indicates invalid request data (400, 422)
	ErrorTypeValidation ErrorType = "validation_error"

	// ErrorTypeRateLimit indicates rate limit exceeded (429)
	ErrorTypeRateLimit ErrorType = "rate_limited"

	// ErrorTypeServer indicates server-side error (5xx)
	ErrorTypeServer ErrorType = "server_error"

	// ErrorTypeTimeout indicates operation timeout
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeConnection indicates network/DNS error
	ErrorTypeConnection ErrorType = "connection_error"

	// ErrorTypeTransform indicates response transform failure
	ErrorTypeTransform ErrorType = "transform_error"

	// ErrorTypeCircuitOpen indicates the circuit breaker rejected the call
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	// ErrorTypeNotConnected indicates the connector has no established client
	ErrorTypeNotConnected ErrorType = "not_connected"

	// ErrorTypeNotImplemented indicates the operation does not exist
	ErrorTypeNotImplemented ErrorType = "not_implemented"

	// ErrorTypeCancelled indicates the caller cancelled the operation
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error represents a connector execution error with classification.
type Error struct {
	// Type classifies the error for retry and breaker decisions
	Type ErrorType

	// Connector is the connector name
	Connector string

	// Operation is the operation that failed (empty for lifecycle errors)
	Operation string

	// Message is the human-readable error description
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Operation != "" {
		msg = fmt.Sprintf("%s.%s: %s", e.Connector, e.Operation, msg)
	} else if e.Connector != "" {
		msg = fmt.Sprintf("%s: %s", e.Connector, msg)
	}

	if e.Type != "" {
		msg = fmt.Sprintf("%s (type: %s)", msg, e.Type)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if this error type should be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// CountsAsFailure reports whether the error should trip the circuit
// breaker. Caller mistakes (validation, unknown operation, cancelled
// requests) say nothing about downstream health and are excluded.
func (e *Error) CountsAsFailure() bool {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeNotImplemented, ErrorTypeCircuitOpen, ErrorTypeNotFound, ErrorTypeCancelled:
		return false
	default:
		return true
	}
}

// ClassifyHTTPStatus classifies an HTTP status code into an error type.
func ClassifyHTTPStatus(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeValidation
	}
}

// NewCircuitOpenError creates the error returned when the breaker rejects
// a call without reaching the downstream service.
func NewCircuitOpenError(connector, operation string) *Error {
	return &Error{
		Type:      ErrorTypeCircuitOpen,
		Connector: connector,
		Operation: operation,
		Message:   "circuit breaker is open",
	}
}

// NewNotConnectedError creates the error returned when a connector is
// asked to execute without an established client.
func NewNotConnectedError(connector string) *Error {
	return &Error{
		Type:      ErrorTypeNotConnected,
		Connector: connector,
		Message:   "connector is not connected",
	}
}

// NewUnknownOperationError creates the error for an operation name the
// connector does not implement.
func NewUnknownOperationError(connector, operation string) *Error {
	return &Error{
		Type:      ErrorTypeNotImplemented,
		Connector: connector,
		Operation: operation,
		Message:   "unknown operation",
	}
}
