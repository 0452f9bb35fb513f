// Package imerr implements the domain-level error taxonomy of §7,
// independent of any transport. Handlers translate a Kind to an HTTP
// status or a gateway ERROR frame at the boundary; nothing below that
// boundary should know about HTTP or the wire format.
package imerr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven domain error categories from §7.
type Kind int

const (
	// KindNone is the zero value; never constructed directly.
	KindNone Kind = iota
	KindNotFound
	KindInvalidInput
	KindUnauthorized
	KindConflict
	KindTransportTransient
	KindDatabase
	KindDeliveryDropped
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindTransportTransient:
		return "transport_transient"
	case KindDatabase:
		return "database"
	case KindDeliveryDropped:
		return "delivery_dropped"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind, matching the teacher's
// own auth.AuthErr pattern of pairing a coarse code with a wrapped error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, or KindNone if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

var (
	// ErrNotFound and friends are sentinel conveniences for errors.Is
	// comparisons against bare category membership, without caring
	// about the message or cause.
	ErrNotFound            = New(KindNotFound, "not found")
	ErrInvalidInput        = New(KindInvalidInput, "invalid input")
	ErrUnauthorized        = New(KindUnauthorized, "unauthorized")
	ErrConflict            = New(KindConflict, "conflict")
	ErrTransportTransient  = New(KindTransportTransient, "transport transient")
	ErrDatabase            = New(KindDatabase, "database error")
	ErrDeliveryDropped     = New(KindDeliveryDropped, "delivery dropped")
)

// NotFound, InvalidInput, Unauthorized, Conflict, TransportTransient,
// Database and DeliveryDropped are constructors mirroring §7's names.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func TransportTransient(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindTransportTransient, fmt.Sprintf(format, args...), cause)
}

func Database(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindDatabase, fmt.Sprintf(format, args...), cause)
}

func DeliveryDropped(format string, args ...interface{}) *Error {
	return New(KindDeliveryDropped, fmt.Sprintf(format, args...))
}
