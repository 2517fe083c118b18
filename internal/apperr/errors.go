// Package apperr defines the error kinds shared by the pipelines and their
// collaborators. Kinds are sentinels matched with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrIO marks state file read/write failures.
	ErrIO = errors.New("state i/o error")

	// ErrConcurrency marks a pipeline lock conflict.
	ErrConcurrency = errors.New("another pipeline is running")

	// ErrExternalService marks feed, scrape, remote database or text-generation failures.
	ErrExternalService = errors.New("external service error")

	// ErrParse marks a malformed classification response.
	ErrParse = errors.New("malformed response")

	// ErrMissingCredential marks a required API credential that is not configured.
	ErrMissingCredential = errors.New("missing credential")
)

// Error carries an error kind, the failing operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New wraps err with kind and op.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IO is shorthand for New(ErrIO, op, err).
func IO(op string, err error) *Error { return New(ErrIO, op, err) }

// External is shorthand for New(ErrExternalService, op, err).
func External(op string, err error) *Error { return New(ErrExternalService, op, err) }
