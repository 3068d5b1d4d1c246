// Package errors wraps pkg/errors and defines the error kinds every backend
// failure is translated into before it reaches a caller.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies the kind of a failure. Use Is to check an error against a
// Code regardless of how many times it was wrapped.
type Code string

const (
	// ErrNoSuchTable is returned when an operation references an undefined table.
	ErrNoSuchTable Code = "NoSuchTable"
	// ErrDuplicateTable is returned when a table is created under an existing name.
	ErrDuplicateTable Code = "DuplicateTable"
	// ErrInvalidEncoding is returned for byte buffers of the wrong length or shape.
	ErrInvalidEncoding Code = "InvalidEncoding"
	// ErrEncoding is returned when a typed value does not fit the 64-bit key space.
	ErrEncoding Code = "Encoding"
	// ErrBackendUnavailable is returned when the backend cannot be reached or opened.
	ErrBackendUnavailable Code = "BackendUnavailable"
	// ErrStorageFailure is returned when an established backend fails a read or write.
	ErrStorageFailure Code = "StorageFailure"

	// ErrUncoded is the code reported for errors that never passed through this package.
	ErrUncoded Code = "Uncoded"
)

// Error is the concrete type behind every coded error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.cause.Error()
	}
	return e.Message + ": " + e.cause.Error()
}

// Unwrap exposes the underlying cause, if any, to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns a coded error with a stack trace.
func New(code Code, message string) error {
	return errors.WithStack(&Error{Code: code, Message: message})
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns a coded error that keeps err as its cause. A nil err yields nil.
// If err already carries code the message is added without introducing a
// second coded layer.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	if Is(err, code) {
		return errors.WithMessage(err, message)
	}
	return errors.WithStack(&Error{Code: code, Message: message, cause: err})
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, code Code, format string, args ...interface{}) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithMessage annotates err without changing its code.
func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CodeOf returns the outermost code in err's chain, ErrUncoded for errors
// without one, and the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

// Cause returns the underlying cause of the outermost coded error in err's
// chain, or nil when there is none.
func Cause(err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.cause
	}
	return nil
}
