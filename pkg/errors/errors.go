// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling for the civitas runtime.
// Every failure that crosses the core boundary is one of a small set of
// classes the caller can branch on without string matching.
package errors

import (
	"encoding/json"
	"fmt"
)

// Code classifies civitas errors for reporting and recovery.
type Code string

const (
	// CodeConfiguration indicates a wiring problem: a capability without a
	// registered handler, a service missing required manifest fields.
	CodeConfiguration Code = "CONFIGURATION_ERROR"

	// CodeInput indicates caller-supplied input that could not be used.
	// These are expected, frequent outcomes, not faults.
	CodeInput Code = "INPUT_ERROR"

	// CodeAdapter indicates an external collaborator failed.
	CodeAdapter Code = "ADAPTER_FAILURE"

	// CodeIntegrity indicates an artefact set that is internally
	// inconsistent. Raised at load time, never at invocation time.
	CodeIntegrity Code = "INTEGRITY_ERROR"

	// CodeNotFound indicates a service or artefact was not found.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInternal indicates an internal runtime error.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is a typed error with context for observability.
// It implements the error interface and supports errors.As unwrapping.
type Error struct {
	Code    Code
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"code":    string(e.Code),
		"message": e.Message,
	}
	if e.Err != nil {
		out["cause"] = e.Err.Error()
	}
	if len(e.Context) > 0 {
		out["context"] = e.Context
	}
	return json.Marshal(out)
}

// New creates an Error with the given code, message, and cause.
func New(code Code, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]any),
	}
}

// Newf creates an Error with a formatted message and no cause.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// AsError converts err to an *Error, wrapping unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code Code) bool {
	ce, ok := err.(*Error)
	return ok && ce.Code == code
}
