package o11y

import (
	"context"
	"errors"
)

// NewWarning will return a generic error that can be tested for warning.
// No two errors created with NewWarning will be tested as equal with Is.
func NewWarning(warn string) error {
	return &wrapWarnError{
		msg: warn,
		err: errWarning,
	}
}

// AsWarning marks err as a warning while keeping it in the chain, so errors.Is and
// errors.As still see the original. A nil err stays nil.
func AsWarning(err error) error {
	if err == nil {
		return nil
	}
	return &warnError{err: err}
}

// sentinel warning to use with errors.Is in IsWarning
var errWarning = errors.New("")

// IsWarning returns true if any error in the chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, errWarning)
}

// DontErrorTrace returns true if all errors in the chain is a warning or context canceled or context deadline errors.
func DontErrorTrace(err error) bool {
	return IsWarning(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// wrapWarnError is a wrapping error to be tested for warning.
type wrapWarnError struct {
	msg string
	err error
}

func (e *wrapWarnError) Error() string {
	return e.msg
}

func (e *wrapWarnError) Unwrap() error {
	return e.err
}

type warnError struct {
	err error
}

func (e *warnError) Error() string {
	return e.err.Error()
}

func (e *warnError) Unwrap() []error {
	return []error{errWarning, e.err}
}
