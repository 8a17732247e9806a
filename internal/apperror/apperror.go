// Package apperror is the registry's error domain type.
//
// Components should create an Error at the system boundary (a database
// client, a blob store request, a parsed upload) and intermediate layers
// should wrap with fmt.Errorf's "%w" rather than creating another Error,
// except to attach a more specific Kind. The HTTP layer is the only place
// that maps a Kind to a status code.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure the way §7 of the design requires: every
// fallible operation picks one of these, there is no "unknown" kind exposed
// to callers.
type Kind string

const (
	Validation     Kind = "validation"
	Authentication Kind = "authentication"
	Authorization  Kind = "authorization"
	NotFound       Kind = "not_found"
	Conflict       Kind = "conflict"
	RateLimited    Kind = "rate_limited"
	Upstream       Kind = "upstream"
	ReadOnly       Kind = "read_only"
	Internal       Kind = "internal"
)

func (k Kind) Error() string { return string(k) }

// Error is the registry error domain type. See the package doc.
type Error struct {
	Kind    Kind
	Op      string
	Detail  string
	Inner   error
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Detail)
	if e.Inner != nil {
		b.WriteString(": ")
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error { return e.Inner }

// New constructs an Error of the given Kind with the given user-readable
// detail message.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap constructs an Error of the given Kind, chaining err.
func Wrap(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Inner: err}
}

// Wrapf is Wrap with a formatted detail message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), Inner: err}
}

// KindOf extracts the Kind of err, defaulting to Internal when err does not
// chain through an *Error. This is the one place library code is allowed to
// guess, and it always resolves to the most conservative kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// DetailOf extracts the user-readable detail of err, if any.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// Retryable reports whether a background job should retry after this
// error, per §4.5's lifecycle: only Upstream failures are expected to
// clear up on their own.
func Retryable(err error) bool {
	return KindOf(err) == Upstream
}
