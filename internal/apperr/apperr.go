package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the REST boundary
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindSelfPurchase   Kind = "self_purchase"
	KindConflict       Kind = "conflict"
	KindPersistence    Kind = "persistence"
)

// Error is the typed result returned by every service operation
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Unauthenticated() *Error {
	return &Error{
		Kind:    KindAuthentication,
		Code:    "not_authenticated",
		Message: "You must be authenticated to access this endpoint.",
	}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func SelfPurchase() *Error {
	return &Error{
		Kind:    KindSelfPurchase,
		Code:    "own_product",
		Message: "You cannot buy your own product.",
	}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Persistence wraps a storage failure
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: "persistence_failed", Message: message, Err: err}
}

// KindOf reports the kind of err, treating untyped errors as persistence failures
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to its response status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSelfPurchase:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeAndMessage returns the machine-readable code and the human message for err
func CodeAndMessage(err error) (string, string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	return "internal_error", "An unexpected error occurred."
}
