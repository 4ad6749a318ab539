package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("service unavailable")
)

// Error carries a human readable message while still matching one of the
// sentinel kinds above through errors.Is.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return newf(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func Forbiddenf(format string, args ...any) error {
	return newf(ErrForbidden, format, args...)
}

func Unavailablef(format string, args ...any) error {
	return newf(ErrUnavailable, format, args...)
}

// InvalidTransitionError is returned when a payment is moved between two
// states the state machine does not connect.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s → %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrValidation }
