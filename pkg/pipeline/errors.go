package pipeline

import (
	"errors"
	"fmt"
)

// SourceError marks a failed read from a record source. Retried with
// backoff; the chunk is not committed.
type SourceError struct {
	error
}

// NewSourceError wraps a source read failure.
func NewSourceError(source string, err error) error {
	return SourceError{error: fmt.Errorf("source %s: %w", source, err)}
}

// TransientDBError marks a retriable database failure (connection loss,
// serialization conflict).
type TransientDBError struct {
	error
}

// NewTransientDBError wraps a retriable database failure.
func NewTransientDBError(err error) error {
	return TransientDBError{error: fmt.Errorf("db: %w", err)}
}

// FatalDBError marks a non-retriable database failure (constraint
// violation, schema mismatch). The process stops.
type FatalDBError struct {
	error
}

// NewFatalDBError wraps a non-retriable database failure.
func NewFatalDBError(err error) error {
	return FatalDBError{error: fmt.Errorf("db: %w", err)}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var src SourceError
	var db TransientDBError
	return errors.As(err, &src) || errors.As(err, &db)
}
