package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for transport mapping and retry policy.
type Kind int

const (
	Validation Kind = iota // malformed or insufficient input
	Permission             // actor lacks the right to perform the operation
	NotFound               // referenced entity does not exist
	Conflict               // the operation contradicts current state
	Transient              // store unreachable; safe to retry
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

func Permissionf(format string, args ...any) error {
	return &Error{Kind: Permission, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// Transientf wraps a store error that the caller may retry. The operation
// must not be assumed to have partially applied.
func Transientf(err error, format string, args ...any) error {
	return &Error{Kind: Transient, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
