package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned by a repository when an insert would
	// create a second automatic posting for the same source and day.
	ErrDuplicateEntry = errors.New("duplicate entry")

	ErrNotFound = errors.New("not found")

	// ErrArithmeticInvariant signals corrupted ledger data. It must reach the
	// caller; nothing in the engine recovers from it.
	ErrArithmeticInvariant = errors.New("arithmetic invariant violation")
)

// ValidationError describes a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RepositoryError wraps a storage failure (unreachable backend, timeout,
// driver error). Callers treat it as transient.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline being exceeded.
func (e *RepositoryError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// WrapRepo returns nil for a nil err and leaves domain sentinels untouched.
func WrapRepo(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrNotFound) {
		return err
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}
