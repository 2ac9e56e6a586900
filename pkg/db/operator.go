package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/config"
)

// Operator defines basic database management operations: connection
// lifecycle plus the pool handle the higher-level components (schema
// manager, persistence writer, link resolver, alert detector) use for
// their own SQL.
//
// The interface stays minimal on purpose. Pool() exposes pgxpool so the
// writer can use batched inserts and transactions directly; schema
// creation and migration are handled by GORM AutoMigrate in the schema
// manager.
type Operator interface {
	// Connect establishes a connection pool to the database.
	Connect(context.Context, *config.DatabaseConfig) error

	// Close closes the database connection pool.
	Close() error

	// Pool returns the underlying pgxpool.Pool for components to run
	// transactions, batched inserts and custom queries.
	Pool() *pgxpool.Pool

	// TableExists checks if a table exists in the public schema.
	TableExists(ctx context.Context, tableName string) (bool, error)

	// HasTables checks if the database has any tables in the public
	// schema. Used by setup-db to decide whether --drop is needed.
	HasTables(ctx context.Context) (bool, error)

	// DropAllTables drops all tables in the public schema. Used by
	// setup-db --drop.
	DropAllTables(ctx context.Context) error
}
