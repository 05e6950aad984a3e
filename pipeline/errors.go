package pipeline

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure class.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeIllegalTransition   Code = "ILLEGAL_TRANSITION"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeChargeFailed        Code = "CHARGE_FAILED"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeCancelled           Code = "CANCELLED"
)

// Error carries a Code plus a message that is safe to show to API callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, ErrIllegalTransition).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrIllegalTransition   = &Error{Code: CodeIllegalTransition, Message: "illegal transition"}
	ErrConcurrencyConflict = &Error{Code: CodeConcurrencyConflict, Message: "concurrency conflict"}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrCancelled           = &Error{Code: CodeCancelled, Message: "cancelled"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return newError(CodeNotFound, format, args...)
}

func IllegalTransitionf(format string, args ...any) error {
	return newError(CodeIllegalTransition, format, args...)
}

func ConflictErr(format string, args ...any) error {
	return newError(CodeConcurrencyConflict, format, args...)
}

func InvalidArgumentf(format string, args ...any) error {
	return newError(CodeInvalidArgument, format, args...)
}

// CodeOf returns the Code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
