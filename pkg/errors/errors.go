// Package errors provides structured error types for medialskel.
//
// Errors carry a machine-readable Code so callers can tell configuration
// mistakes (a working region larger than the grid, non-binary engine input)
// apart from I/O failures without matching on message text.
//
//	err := errors.New(errors.ErrCodeRegionOutOfBounds, "region %v exceeds %v", r, size)
//	if errors.Is(err, errors.ErrCodeRegionOutOfBounds) {
//	    // fail fast
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// ErrCodeRegionOutOfBounds is returned when a requested working region
	// does not fit inside the allocated extent of a grid.
	ErrCodeRegionOutOfBounds Code = "REGION_OUT_OF_BOUNDS"

	// ErrCodeInvalidInput marks precondition violations on volumetric inputs,
	// such as non-binary values handed to the thinning engine or grids whose
	// geometry does not match.
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// ErrCodeInvalidConfig marks unusable configuration values.
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// ErrCodeInvalidFormat marks malformed volume or endpoint files.
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"

	// ErrCodeIO marks filesystem failures.
	ErrCodeIO Code = "IO_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain carries the given code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from err.
// It returns the empty string if err carries no *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
