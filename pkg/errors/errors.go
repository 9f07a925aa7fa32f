// Package errors provides structured error handling for Relay.
//
// Every failure the engine can surface carries an ErrorType that decides its
// fate: configuration and credential errors always reach the caller, upstream
// errors follow the pipeline's retry policy, and timeouts or caller halts are
// normal stop conditions rather than failures.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfig represents a missing adapter, endpoint or required field
	ErrorTypeConfig ErrorType = "configuration"
	// ErrorTypeCredentialsNotFound represents a credential id absent from the vault
	ErrorTypeCredentialsNotFound ErrorType = "credentials_not_found"
	// ErrorTypeAuthorizationRequired represents an OAuth2 credential without any usable grant
	ErrorTypeAuthorizationRequired ErrorType = "authorization_required"
	// ErrorTypeAuthentication represents a failed token exchange
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeUpstream wraps any adapter error raised during connect, download or upload
	ErrorTypeUpstream ErrorType = "upstream_operation"
	// ErrorTypeTimeout represents an abandoned extraction loop
	ErrorTypeTimeout ErrorType = "timeout_exceeded"
	// ErrorTypeHalted represents a pre-send hook that stopped delivery
	ErrorTypeHalted ErrorType = "halted_by_caller"
	// ErrorTypeValidation represents invalid user input outside of connector configuration
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeData represents encoding or decoding failures
	ErrorTypeData ErrorType = "data"
	// ErrorTypeConnection represents transport level failures inside adapters
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// TypeOf returns the type of the outermost structured error in the chain,
// or ErrorTypeInternal for plain errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsType checks if any structured error in the chain is of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsFatal reports whether the error must reach the caller regardless of the
// pipeline's fail_on_error policy.
func IsFatal(err error) bool {
	return IsType(err, ErrorTypeConfig) ||
		IsType(err, ErrorTypeCredentialsNotFound) ||
		IsType(err, ErrorTypeAuthorizationRequired) ||
		IsType(err, ErrorTypeAuthentication)
}

// Is and As re-export the standard library helpers so callers need one import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
