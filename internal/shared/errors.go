// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Common domain errors that can be used across the application
var (
	// ErrNotFound indicates that a requested record was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that the request conflicts with current state,
	// e.g. a unique constraint violation
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvariantViolated indicates that a business rule was violated
	ErrInvariantViolated = errors.New("invariant violated")

	// ErrDependencyFailure indicates that the database or another
	// external dependency failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents record not found errors
	KindNotFound
	// KindValidation represents input validation errors
	KindValidation
	// KindConflict represents constraint conflict errors
	KindConflict
	// KindInternal represents internal errors
	KindInternal
	// KindTimeout represents timeout errors
	KindTimeout
	// KindInvariantViolated represents business rule violations
	KindInvariantViolated
	// KindDependencyFailure represents external dependency failures
	KindDependencyFailure
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindInvariantViolated:
		return "InvariantViolated"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindToSentinel maps error kinds to their corresponding sentinel errors.
var kindToSentinel = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindConflict:          ErrConflict,
	KindInternal:          ErrInternal,
	KindTimeout:           ErrTimeout,
	KindInvariantViolated: ErrInvariantViolated,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},       // context.Canceled (special case)
	{KindTimeout, ErrTimeout}, // timeout errors have high priority
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
	{KindDependencyFailure, ErrDependencyFailure}, // dependency failures should be visible
	{KindInternal, ErrInternal},
	{KindInvariantViolated, ErrInvariantViolated},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain to find the root classification using a deterministic priority order.
//
// The classification priority (highest to lowest):
//  1. KindCanceled (context.Canceled)
//  2. KindTimeout (context.DeadlineExceeded, ErrTimeout, net timeout errors)
//  3. KindNotFound, KindValidation, KindConflict
//  4. KindDependencyFailure (external dependencies have higher visibility than internal errors)
//  5. KindInternal, KindInvariantViolated (lowest priority)
//
// For errors created with errors.Join, the first matching kind in priority order is returned.
// Returns KindUnknown for unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	case shared.KindConflict:
//	    return http.StatusConflict
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	// Check kinds in priority order (deterministic)
	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if priority.err != nil && errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
// It is equivalent to KindOf(err) == kind but provides a more explicit API.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	if sentinel, exists := kindToSentinel[kind]; exists {
		return sentinel
	}
	return nil
}

// MarkKind wraps an error with the appropriate sentinel error for the given kind,
// preserving the original error through error wrapping.
// This allows both KindOf(MarkKind(err, kind)) == kind and errors.Is(MarkKind(err, kind), err) to be true.
// If err is nil, returns the sentinel error for the kind (or nil for unsupported kinds).
// If kind is KindUnknown or KindCanceled, returns the original error unchanged.
//
// This function is idempotent: marking an error with a kind it already has returns the error unchanged.
//
// Example usage for adapting driver errors:
//
//	if err := repo.Get(ctx, id); err != nil {
//	    if errors.Is(err, sql.ErrNoRows) {
//	        return shared.MarkKind(err, shared.KindNotFound)
//	    }
//	    return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
func MarkKind(err error, kind Kind) error {
	// Handle nil error
	if err == nil {
		return SentinelOf(kind)
	}

	// Special handling for kinds without sentinel errors
	switch kind {
	case KindUnknown:
		return err // no marking needed
	case KindCanceled:
		// For canceled, we typically don't mark - return original
		return err
	}

	// Get the sentinel error for this kind
	sentinel := SentinelOf(kind)
	if sentinel == nil {
		return err // unknown kind, return unchanged
	}

	// If the error already has this kind, return as-is to avoid double wrapping
	if KindOf(err) == kind {
		return err
	}

	// Wrap with the sentinel error
	return fmt.Errorf("%w: %w", sentinel, err)
}

// New creates an error carrying the given kind.
func New(kind Kind, message string) error {
	return MarkKind(errors.New(message), kind)
}

// Newf creates a formatted error carrying the given kind.
func Newf(kind Kind, format string, args ...interface{}) error {
	return MarkKind(fmt.Errorf(format, args...), kind)
}

// FromDB classifies a database driver error into a domain error kind.
// sql.ErrNoRows becomes KindNotFound, constraint violations become
// KindConflict, everything else becomes KindDependencyFailure.
// Returns nil if err is nil.
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return MarkKind(err, KindNotFound)
	}
	if IsConstraintViolation(err) {
		return MarkKind(err, KindConflict)
	}
	if IsTimeout(err) {
		return MarkKind(err, KindTimeout)
	}
	if IsCanceled(err) {
		return err
	}
	return MarkKind(err, KindDependencyFailure)
}

// IsConstraintViolation reports whether the error looks like a database
// constraint violation. Covers SQLite (modernc) and PostgreSQL message
// formats without importing driver packages.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "violates foreign key constraint")
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
// If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
// It returns a new error that formats as "context: err".
// If err is nil, Wrapf returns nil.
// If formatted context is empty, returns the original error.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Invariant checks a condition and returns an error if it's false.
// This is useful for domain invariant validation.
func Invariant(condition bool, message string) error {
	if condition {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvariantViolated, message)
}

// InvariantF checks a condition and returns a formatted error if it's false.
func InvariantF(condition bool, format string, args ...interface{}) error {
	if condition {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s", ErrInvariantViolated, message)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and our ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	// Check for standard timeout errors
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}

	// Check for network timeout errors
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsNotFound reports whether the error indicates a record not found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether the error indicates a constraint conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
