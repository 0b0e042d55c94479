// Package apperr defines the error kinds every domain package reports and
// maps them onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds. Domain errors unwrap to exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrInconsistent = errors.New("inconsistent record")
)

// Error is a typed domain failure carrying a caller-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func NotFound(msg string) *Error     { return &Error{Kind: ErrNotFound, Msg: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: ErrConflict, Msg: msg} }
func Inconsistent(msg string) *Error { return &Error{Kind: ErrInconsistent, Msg: msg} }

// Validation returns a validation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus returns the status code for err's kind.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo.HTTPError. Typed errors keep
// their message; anything else is reported as an internal error with the
// cause attached for the request logger.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(HTTPStatus(ae), ae.Msg).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
