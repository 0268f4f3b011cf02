// Package pipelineerr models the error-kind taxonomy shared by every stage
// of the translation pipeline so that callers can branch on Kind instead of
// string-matching messages.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the pipeline's recognized failure categories an
// error belongs to.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBlocked    Kind = "blocked"
	KindTimeout    Kind = "timeout"
	KindUpstream   Kind = "upstream"
	KindInvariant  Kind = "invariant"
	KindStorage    Kind = "storage"
	KindConflict   Kind = "conflict"
)

// Error wraps an underlying error with the operation it occurred in and the
// Kind it belongs to, so errors.Is/errors.As keep working across the stack.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, KindX) style checks work by comparing against a
// sentinel *Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New wraps err under op with the given Kind. A nil err still produces a
// classifiable sentinel (useful for errors.Is checks against a bare Kind).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap is a convenience for New when the caller already has an fmt-style
// message instead of a wrapped error.
func Wrap(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Sentinel returns an *Error usable purely for errors.Is comparisons, e.g.
// errors.Is(err, pipelineerr.Sentinel(KindNotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
