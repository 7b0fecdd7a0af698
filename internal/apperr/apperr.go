// Package apperr defines the stable error kinds every flow reports to its
// caller. Domain packages keep their own sentinels; the credentials package
// translates them into these kinds before they leave the core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-checkable error category.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindAuth         Kind = "auth"
	KindRateExceeded Kind = "rate_exceeded"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error carries a kind, a message safe to show to end users and an optional
// cause that is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Err     error
}

// Sentinels usable with errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrRateExceeded = &Error{Kind: KindRateExceeded}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrInternal     = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind whose message is
// either empty or identical.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithField returns a copy of e with an extra response field attached.
func (e *Error) WithField(key string, value any) *Error {
	cp := *e
	cp.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Auth(msg string) *Error         { return &Error{Kind: KindAuth, Message: msg} }
func RateExceeded(msg string) *Error { return &Error{Kind: KindRateExceeded, Message: msg} }

// Upstream wraps a failure of an external collaborator.
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

// Internal wraps an unexpected failure. The cause is never shown to callers.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: cause}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns err as an *Error, wrapping foreign errors as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
