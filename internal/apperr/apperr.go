// Package apperr carries the error kinds every mutation can end in, plus
// whether the mutation is known to have been applied.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Outcome tells the caller what happened to the graph when an operation failed.
type Outcome string

const (
	OutcomeNotApplied    Outcome = "not_applied"
	OutcomeApplied       Outcome = "applied"
	OutcomeIndeterminate Outcome = "indeterminate"
)

type Error struct {
	Kind    Kind
	Message string
	Outcome Outcome
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Outcome: OutcomeNotApplied}
}

func Unauthenticated(msg string) *Error { return newErr(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return newErr(KindForbidden, msg) }
func NotFound(msg string) *Error        { return newErr(KindNotFound, msg) }
func Conflict(msg string) *Error        { return newErr(KindConflict, msg) }

func Validation(msg string, details any) *Error {
	e := newErr(KindValidation, msg)
	e.Details = details
	return e
}

// Internal wraps an unexpected failure. The message is what callers see; err
// is only for logs.
func Internal(msg string, outcome Outcome, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Outcome: outcome, Err: err}
}

// KindOf reports the kind of err, treating anything unclassified as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeApplied
	}
	var e *Error
	if errors.As(err, &e) && e.Outcome != "" {
		return e.Outcome
	}
	return OutcomeIndeterminate
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// Fields is the details payload of a validation error.
type Fields struct {
	Fields []FieldError `json:"fields"`
}
