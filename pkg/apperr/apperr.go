// Package apperr carries the error taxonomy shared by the case and service
// request components. The HTTP error handler maps each Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindStoreFailure
	KindForbidden
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindStoreFailure:
		return "STORE_FAILURE"
	case KindForbidden:
		return "FORBIDDEN"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// Error is a domain error with a Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string // operation that failed (optional)
	Err     error  // underlying error (optional)
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error { return &Error{Kind: kind, Message: message} }

func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }

// Store wraps a data-store failure. The enclosing transaction is rolled back by
// returning this error from the transaction closure.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStoreFailure, Message: "data store failure", Op: op, Err: err}
}

// As extracts an *Error from err, if there is one in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
