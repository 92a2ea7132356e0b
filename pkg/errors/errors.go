// Package errors provides the domain error taxonomy for the brokerage core.
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Domain error kinds. These are business-rule rejections raised at the point
// of violation and surfaced unmodified to the boundary layer.
const (
	KindInvalidArgument     = "InvalidArgument"
	KindInsufficientBalance = "InsufficientBalance"
	KindCustomerNotFound    = "CustomerNotFound"
	KindOrderNotFound       = "OrderNotFound"
	KindInternal            = "Internal"
)

var (
	ErrInvalidArgument     = NewWithKind(KindInvalidArgument, "invalid argument")
	ErrInsufficientBalance = NewWithKind(KindInsufficientBalance, "insufficient asset balance")
	ErrCustomerNotFound    = NewWithKind(KindCustomerNotFound, "customer not found or not enabled")
	ErrOrderNotFound       = NewWithKind(KindOrderNotFound, "order not found or not in PENDING status")
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicates the error
	Message string `json:"message"`

	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

func NewWithKind(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches errors of the same kind, so sentinel comparisons keep working
// on copies produced by Explain and Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Wrap returns a copy of the error with the given cause attached
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain returns a copy of the error with the given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// KindOf reports the domain kind of err, or KindInternal for foreign errors.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
