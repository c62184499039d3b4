// Package errs defines the error taxonomy shared by the directory, the
// permission policy, the record collections and the document store.
//
// Callers test with errors.Is; concrete errors wrap one of the sentinels
// below with extra context via fmt.Errorf("...: %w", ...).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing group, code, user or record.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied marks an authorization failure. Never retried.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConcurrentModification marks a lost optimistic-concurrency race
	// that persisted after the retry budget.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrUpstreamUnavailable marks a transient store or network failure
	// that persisted after backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidPolicy marks a permission change that would leave the
	// matrix malformed or lock admins out of the admin module.
	ErrInvalidPolicy = errors.New("invalid permission policy")
	// ErrCodeGenerationExhausted is returned when no unused join code was
	// found within the attempt budget. Callers may retry.
	ErrCodeGenerationExhausted = errors.New("join code generation exhausted")
	// ErrLastAdmin is returned when an operation would leave a group that
	// still has members without any admin.
	ErrLastAdmin = errors.New("group must keep at least one admin")
	// ErrUnauthenticated is returned when no identity is available.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDuplicate is returned by the store when a unique key is taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("malformed document")
)

// DecodeError reports a stored document that could not be turned into a
// valid typed record.
type DecodeError struct {
	Collection string
	ID         string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s/%s: %v", e.Collection, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidPolicy wraps ErrInvalidPolicy with a formatted message.
func InvalidPolicy(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
}

// Retryable reports whether err is a transient condition a caller may
// retry: lost races, store outages and join code exhaustion.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrCodeGenerationExhausted)
}
