// Package apperr provides the coded errors shared by the issue desk services.
//
// Business outcomes (NotFound, Conflict, Validation) are returned to callers as
// is and never retried. Infrastructure failures are wrapped as TransientIO so
// callers can tell "retry later" apart from "this action is invalid":
//
//	if errors.Is(err, apperr.ErrConflict) {
//	    // no copies left, duplicate issue, already returned...
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeValidation  Code = "VALIDATION"
	CodeTransientIO Code = "TRANSIENT_IO"
	CodeConfig      Code = "CONFIG"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeInternal    Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status for the code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeTransientIO:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound    = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict    = &Error{Code: CodeConflict, Message: "conflict"}
	ErrValidation  = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrTransientIO = &Error{Code: CodeTransientIO, Message: "transient I/O failure"}
	ErrConfig      = &Error{Code: CodeConfig, Message: "invalid configuration"}
	ErrRateLimited = &Error{Code: CodeRateLimited, Message: "rate limit exceeded"}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Config(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// Transient wraps an infrastructure failure (database, network).
// A nil cause yields nil so call sites can wrap unconditionally.
func Transient(msg string, cause error) error {
	if cause == nil {
		return nil
	}
	var coded *Error
	if errors.As(cause, &coded) {
		return cause
	}
	return &Error{Code: CodeTransientIO, Message: msg, cause: cause}
}

// CodeOf extracts the code of err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
