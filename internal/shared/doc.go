// Package shared contains common error types and utilities for error handling
// across the application without domain-specific logic.
//
// # Error Types and Classification
//
// The package defines sentinel errors for the conditions a data-access layer
// actually produces (ErrNotFound, ErrValidation, ErrConflict, ErrTimeout, ...)
// and a Kind enum for classifying arbitrary error chains:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    // 404
//	case shared.KindConflict:
//	    // 409
//	}
//
// Driver errors are adapted at the storage boundary with FromDB, which maps
// sql.ErrNoRows to KindNotFound and constraint violations to KindConflict:
//
//	row := q.QueryRowContext(ctx, query, args...)
//	if err := row.Scan(&u.ID, &u.Name); err != nil {
//	    return nil, shared.FromDB(err)
//	}
//
// Wrapping helpers (Wrap, Wrapf, MarkKind) preserve the original error chain,
// so errors.Is keeps working through every layer.
package shared
