package model

import (
	"errors"
	"fmt"
)

// Error is a sentinel with an optional detail message. errors.Is matches on
// the sentinel regardless of detail.
type Error struct {
	code   string
	detail string
	base   *Error
}

func newError(code string) *Error {
	return &Error{code: code}
}

func (e *Error) Error() string {
	if e.detail == "" {
		return e.code
	}
	return e.code + ": " + e.detail
}

// Is reports whether target is the sentinel e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.root() == t.root()
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}
	return e
}

// With returns a copy of the sentinel carrying a detail message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{code: e.code, detail: fmt.Sprintf(format, args...), base: e.root()}
}

var (
	// Authentication failure classes.
	ErrCredential        = newError("credential rejected")
	ErrRateLimited       = newError("rate limited")
	ErrTransient         = newError("transient failure")
	ErrChallengeRequired = newError("challenge required")

	// Surfaced to callers.
	ErrNotReady        = newError("account not ready")
	ErrNoTradableItems = newError("no tradable items")
	ErrNotFound        = newError("not found")

	ErrAlreadyExists    = newError("already exists")
	ErrAlreadyRunning   = newError("already running")
	ErrInvalidInput     = newError("invalid input")
	ErrExchangeInFlight = newError("exchange already in flight")
)

// IsRetryable reports whether err belongs to a class the orchestrator retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCredential) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
