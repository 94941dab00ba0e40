package match

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. The string value is the wire error code.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindAlreadyExists       Kind = "ALREADY_EXISTS"
	KindAlreadyLive         Kind = "ALREADY_LIVE"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindInvalidFixtureState Kind = "INVALID_FIXTURE_STATE"
	KindOutOfSequence       Kind = "OUT_OF_SEQUENCE"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindStoreUnavailable    Kind = "STORE_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAlreadyExists       = &Error{Kind: KindAlreadyExists}
	ErrAlreadyLive         = &Error{Kind: KindAlreadyLive}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrInvalidFixtureState = &Error{Kind: KindInvalidFixtureState}
	ErrOutOfSequence       = &Error{Kind: KindOutOfSequence}
	ErrValidationFailed    = &Error{Kind: KindValidationFailed}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is a typed engine error carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
