package module

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a handler failure for the router.
type ErrorKind int

const (
	// KindInternal is any failure that is not one of the kinds below.
	KindInternal ErrorKind = iota
	// KindUnauthorized means the caller may not perform the operation.
	KindUnauthorized
	// KindNotImplemented means the handler does not support the request.
	KindNotImplemented
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotImplemented:
		return "not implemented"
	default:
		return "internal"
	}
}

// Error is the error type returned by module handlers.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	// ErrUnauthorized matches any *Error of kind KindUnauthorized via errors.Is.
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	// ErrNotImplemented matches any *Error of kind KindNotImplemented via errors.Is.
	ErrNotImplemented = &Error{Kind: KindNotImplemented}
)

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare sentinels by kind, so errors.Is(err, ErrUnauthorized) holds
// for every unauthorized error regardless of Op and Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Unauthorized builds a KindUnauthorized error for op.
func Unauthorized(op string, format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotImplemented builds a KindNotImplemented error for op.
func NotImplemented(op string) error {
	return &Error{Kind: KindNotImplemented, Op: op}
}

// Internal wraps err as a KindInternal failure of op.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf classifies err. Errors that are not *Error are internal.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}
