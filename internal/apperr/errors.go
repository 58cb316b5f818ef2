// Package apperr provides the coded error type shared by evodash components.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Each maps to one HTTP status in HTTPStatus.
const (
	CodeValidation = "VALIDATION"
	CodeNotFound   = "NOT_FOUND"
	CodeGenerator  = "GENERATOR"
	CodeStore      = "STORE"
	CodeInternal   = "INTERNAL"
)

// Error is a coded error with optional details and a wrapped cause.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// MarshalJSON includes the cause message, which is otherwise not serialized.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates an Error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err under the given code.
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Validation is shorthand for New(CodeValidation, ...).
func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// CodeOf returns the code of the outermost *Error in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeGenerator:
		// Generator failures are reported in the response payload.
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
