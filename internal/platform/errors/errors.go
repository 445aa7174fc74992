package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code           // Machine-readable error type
	Message  string         // Human-readable message
	Metadata map[string]any // Context reported back to the caller
	Cause    error          // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates a domain error carrying caller-facing context.
func WithMetadata(code Code, message string, metadata map[string]any) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation is shorthand for a validation_error.
func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound is shorthand for a not_found error.
func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// NotConfigured reports that a service client could not be initialized.
func NotConfigured(service string, missing ...string) *Error {
	e := Newf(CodeNotConfigured, "%s client not initialized", service)
	if len(missing) > 0 {
		e.Metadata = map[string]any{"missing": missing}
	}
	return e
}

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// CodeOf classifies err into the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, os.ErrDeadlineExceeded) {
		return CodeTimeout
	}
	var status StatusCoder
	if stderrors.As(err, &status) {
		return CodeHTTP
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeConnection
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return CodeConnection
	}
	if stderrors.Is(err, os.ErrNotExist) {
		return CodeNotFound
	}
	if stderrors.Is(err, os.ErrPermission) {
		return CodePermission
	}
	return CodeUnexpected
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var status StatusCoder
	if stderrors.As(err, &status) {
		return status.StatusCode()
	}
	return 0
}
