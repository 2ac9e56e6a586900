package iodb

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
)

// ConnectionError is returned when the connection pool cannot be built
// or the database does not answer a ping.
type ConnectionError struct {
	error
}

// NewConnectionError wraps a connection failure.
func NewConnectionError(cfg *config.DatabaseConfig, cause error) error {
	return ConnectionError{
		error: fmt.Errorf("connect to %s:%d/%s: %w",
			cfg.Host, cfg.Port, cfg.Database, cause),
	}
}

// NotConnectedError is returned when an operation runs before Connect.
func NotConnectedError() error {
	return errors.New("database is not connected")
}

// QueryError wraps a failed management query.
type QueryError struct {
	error
}

// NewQueryError wraps a failed query with its operation name.
func NewQueryError(op string, cause error) error {
	return QueryError{error: fmt.Errorf("%s: %w", op, cause)}
}

// Classify sorts a database error into the pipeline's retry categories:
// connection loss, serialization conflicts and deadlocks retry with
// backoff; everything else (constraint violations, schema mismatches)
// stops the chunk.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// Class 08: connection exceptions.
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return pipeline.NewTransientDBError(err)
		// Serialization failure, deadlock, lock timeout.
		case pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "55P03":
			return pipeline.NewTransientDBError(err)
		// Admin shutdown and crash recovery.
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "57":
			return pipeline.NewTransientDBError(err)
		default:
			return pipeline.NewFatalDBError(err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return pipeline.NewTransientDBError(err)
	}
	return pipeline.NewFatalDBError(err)
}
