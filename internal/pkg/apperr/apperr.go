package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure. It decides how callers react: whether
// to retry, to surface a validation message, or to treat it as a no-op.
type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports bad input or an illegal transition request. Never retried.
func Validation(op, format string, args ...interface{}) *Error {
	return newError(KindValidation, op, format, args...)
}

// Conflict reports that the operation was already completed.
func Conflict(op, format string, args ...interface{}) *Error {
	return newError(KindConflict, op, format, args...)
}

// NotFound reports a missing referenced entity.
func NotFound(op, format string, args ...interface{}) *Error {
	return newError(KindNotFound, op, format, args...)
}

// Transient wraps a retryable infrastructure failure (DB or network hiccup).
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps a failure that must not be retried automatically.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a job runner may retry after err.
// Validation and permanent failures are final; everything else, including
// unclassified errors, is handed to the retry policy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindPermanent:
		return false
	default:
		return true
	}
}

// WithContext prefixes err with a context label while keeping its kind.
func WithContext(label string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: label, Err: err}
	}
	return fmt.Errorf("%s: %w", label, err)
}
