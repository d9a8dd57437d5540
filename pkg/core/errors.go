package core

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error for boundary mapping. The HTTP layer
// translates kinds to statuses; callers branch with errors.Is on the
// sentinel kinds below.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindInsufficientFunds
	KindStorageUnavailable
	KindTransientUpstream
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindTransientUpstream:
		return "transient_upstream"
	case KindInvariant:
		return "invariant"
	}
	return "unknown"
}

// Error is the domain error type. Msg is safe to show to callers;
// wrapped errors stay internal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches against another *Error by kind, so sentinel values like
// ErrNotFound work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Msg: "unauthenticated"}
	ErrForbidden          = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrNotFound           = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrConflict           = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrValidation         = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Msg: "insufficient funds"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Msg: "storage unavailable"}
	ErrTransientUpstream  = &Error{Kind: KindTransientUpstream, Msg: "upstream temporarily unavailable"}
	ErrInvariant          = &Error{Kind: KindInvariant, Msg: "invariant violated"}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from any error in the chain, KindUnknown if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
