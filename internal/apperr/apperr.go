// Package apperr is the error taxonomy shared by every messaging
// component. Callers branch on Kind; Reason is a stable, user-facing
// string.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindServer Kind = iota
	KindSystemDisabled
	KindUnauthenticated
	KindNotFound
	KindPermissionDenied
	KindInvalidRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindSystemDisabled:
		return "SYSTEM_DISABLED"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindPermissionDenied:
		return "PERMISSION_DENIED"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindConflict:
		return "CONFLICT"
	default:
		return "SERVER_ERROR"
	}
}

// Error carries a Kind, a stable reason and an optional cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, apperr.ErrNotFound)
// matches any NotFound regardless of reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSystemDisabled   = &Error{Kind: KindSystemDisabled, Reason: "system disabled"}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Reason: "unauthenticated"}
	ErrNotFound         = &Error{Kind: KindNotFound, Reason: "not found"}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Reason: "no permission"}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Server wraps a store or transport failure.
func Server(op string, err error) *Error {
	return &Error{Kind: KindServer, Reason: op, Err: err}
}

// KindOf returns the Kind of err, or KindServer for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// ReasonOf returns the stable reason string of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "server error"
}
