package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable error category returned to clients.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalidState      Kind = "INVALID_STATE"
	KindForbidden         Kind = "FORBIDDEN"
	KindConflict          Kind = "CONFLICT"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindPartialFailure    Kind = "PARTIAL_FAILURE"
	KindInternal          Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// InsufficientStockError is returned when a line asks for more units than
// the product has left.
type InsufficientStockError struct {
	ProductID   int
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Product %s has insufficient stock (requested %d, available %d)",
		e.ProductName, e.Requested, e.Available)
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// PartialFailure marks a unit of work that was rolled back. Callers may retry.
func PartialFailure(err error) *Error {
	return &Error{
		Kind:    KindPartialFailure,
		Message: "the operation could not be completed, please retry",
		Err:     err,
	}
}

// KindOf reports the category of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return KindInsufficientStock
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsDomain reports whether err already carries a Kind.
func IsDomain(err error) bool {
	kind := KindOf(err)
	return kind != "" && kind != KindInternal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindInsufficientStock, KindInvalidState:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPartialFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
