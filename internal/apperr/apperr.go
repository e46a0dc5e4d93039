// Package apperr classifies errors surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the class of an error as seen by a caller
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindTransport:
		return "transport_failure"
	default:
		return "internal"
	}
}

// Error carries a Kind, a caller-safe message and an optional cause
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func InvalidInput(msg string, details ...string) *Error {
	e := newError(KindInvalidInput, msg, nil)
	e.Details = details
	return e
}

func Unauthorized(msg string) *Error { return newError(KindUnauthorized, msg, nil) }

// NotFound builds "<resource> not found"
func NotFound(resource string) *Error {
	return newError(KindNotFound, resource+" not found", nil)
}

func Conflict(msg string) *Error { return newError(KindConflict, msg, nil) }

func RateLimited(msg string) *Error { return newError(KindRateLimited, msg, nil) }

func Transport(msg string, err error) *Error { return newError(KindTransport, msg, err) }

func Internal(msg string, err error) *Error { return newError(KindInternal, msg, err) }

// KindOf returns the Kind of err, KindInternal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps an error to its HTTP status code
func Status(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
