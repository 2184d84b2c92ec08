package result

import (
	"errors"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// OperationStatus classifies the outcome carried by a Result.
type OperationStatus string

const (
	StatusSuccess      OperationStatus = "success"
	StatusError        OperationStatus = "error"
	StatusNotFound     OperationStatus = "not_found"
	StatusForbidden    OperationStatus = "forbidden"
	StatusInvalidData  OperationStatus = "invalid_data"
	StatusConflict     OperationStatus = "conflict"
	StatusRateLimited  OperationStatus = "rate_limited"
	StatusTimeout      OperationStatus = "timeout"
	StatusUnauthorized OperationStatus = "unauthorized"
	StatusBlocked      OperationStatus = "blocked"
	StatusPending      OperationStatus = "pending"
)

// Result is the immutable success/error/data carrier returned by every
// service for expected outcomes. Fields are unexported so a Result can only
// be built through the factories below.
type Result[T any] struct {
	status  OperationStatus
	data    T
	message string
	err     error
}

// Success builds a successful result. The message is optional.
func Success[T any](data T, message ...string) Result[T] {
	r := Result[T]{status: StatusSuccess, data: data}
	if len(message) > 0 {
		r.message = message[0]
	}
	return r
}

// Error builds a generic error result.
func Error[T any](message string) Result[T] {
	return Result[T]{status: StatusError, message: message}
}

// ErrorWith builds an error result with a specific status from the richer taxonomy.
func ErrorWith[T any](status OperationStatus, message string) Result[T] {
	if status == StatusSuccess {
		status = StatusError
	}
	return Result[T]{status: status, message: message}
}

// FromError converts an error into an error result, mapping the apperr kind
// onto the matching status. The original error stays reachable via Err.
func FromError[T any](err error) Result[T] {
	if err == nil {
		return Error[T]("unknown error")
	}
	return Result[T]{status: statusForKind(apperr.KindOf(err)), message: err.Error(), err: err}
}

func statusForKind(kind apperr.Kind) OperationStatus {
	switch kind {
	case apperr.KindValidation:
		return StatusInvalidData
	case apperr.KindConflict:
		return StatusConflict
	case apperr.KindNotFound:
		return StatusNotFound
	case apperr.KindTransient:
		return StatusTimeout
	default:
		return StatusError
	}
}

// IsSuccess reports whether the operation succeeded.
func (r Result[T]) IsSuccess() bool { return r.status == StatusSuccess }

// IsError reports whether the operation failed.
func (r Result[T]) IsError() bool { return r.status != StatusSuccess }

// Status returns the outcome classification.
func (r Result[T]) Status() OperationStatus { return r.status }

// Data returns the payload. It is the zero value for error results.
func (r Result[T]) Data() T { return r.data }

// Message returns the human readable message, if any.
func (r Result[T]) Message() string { return r.message }

// Err returns the underlying error. For error results built without one it
// returns an error carrying the message.
func (r Result[T]) Err() error {
	if r.IsSuccess() {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.message)
}
