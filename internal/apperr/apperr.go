// Package apperr defines the error kinds shared by the core services. The API
// layer maps a kind to a status code; everything else only wraps and compares.
package apperr

import (
	"errors"
)

type Kind string

const (
	NotFound          Kind = "not_found"
	Forbidden         Kind = "forbidden"
	Unauthorized      Kind = "unauthorized"
	InvalidArgument   Kind = "invalid_argument"
	InvalidTransition Kind = "invalid_transition"
	InvalidToken      Kind = "invalid_token"
	RateLimited       Kind = "rate_limited"
	Conflict          Kind = "conflict"
	Internal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and client-safe message to an underlying cause.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err. Internal errors never
// expose their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "An internal error occurred"
}
