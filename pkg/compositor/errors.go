package compositor

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a compositor error by which part of the system it
// indicts and what recovery is appropriate.
type ErrorClass string

const (
	// ErrorClassProtocol indicates a framing or decode failure on the
	// control stream. Session-fatal: the connection cannot be trusted
	// afterwards and must be torn down.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassConfig indicates a config process fault: failed launch,
	// crash, or an unusable descriptor. Recovered by respawn or reload.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassValidation indicates semantically invalid input that was
	// rejected or sanitized. Never fatal to anything.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassBackend indicates a display-server boundary failure.
	ErrorClassBackend ErrorClass = "backend"
)

// Error is a classified compositor error.
type Error struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Operation is the protocol operation or loop phase in flight.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Operation != "" {
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewProtocolError creates a session-fatal protocol error.
func NewProtocolError(message string, err error) *Error {
	return &Error{Class: ErrorClassProtocol, Message: message, Err: err}
}

// NewConfigError creates a config process error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewBackendError creates a backend boundary error.
func NewBackendError(message string, err error) *Error {
	return &Error{Class: ErrorClassBackend, Message: message, Err: err}
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// IsProtocol returns true for session-fatal protocol errors.
func IsProtocol(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassProtocol
}

// IsConfig returns true for config process errors.
func IsConfig(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassConfig
}

// IsValidation returns true for validation errors.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassValidation
}

// IsBackend returns true for backend boundary errors.
func IsBackend(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassBackend
}
