package bridge

import (
	"github.com/ctagard/dap-dump/internal/errors"
)

// Result is the outcome of one call across the bridge: a value or a
// structured error, never both.
type Result[T any] struct {
	val T
	err *errors.DebugError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Fail wraps an error. A nil err is treated as CodeUnknown.
func Fail[T any](err *errors.DebugError) Result[T] {
	if err == nil {
		err = &errors.DebugError{Code: errors.CodeUnknown, Message: "unspecified bridge failure"}
	}
	return Result[T]{err: err}
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Get returns the value and the error as a plain Go pair.
func (r Result[T]) Get() (T, error) {
	if r.err != nil {
		return r.val, r.err
	}
	return r.val, nil
}

// Value returns the wrapped value, the zero value on failure.
func (r Result[T]) Value() T {
	return r.val
}

// Err returns the failure, nil on success.
func (r Result[T]) Err() *errors.DebugError {
	return r.err
}

// Code returns the failure code, "" on success.
func (r Result[T]) Code() errors.ErrorCode {
	if r.err == nil {
		return ""
	}
	return r.err.Code
}

// Or returns the value, or def on failure.
func (r Result[T]) Or(def T) T {
	if r.err != nil {
		return def
	}
	return r.val
}

// Map converts a successful value, passing failures through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return Ok(fn(r.val))
}
