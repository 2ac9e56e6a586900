// Package ioschema manages the database schema: GORM AutoMigrate for the
// fixed tables, per-form raw tables from the country config, and the
// expression indexes the alert detector needs.
package ioschema

import (
	"context"

	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/db"
	"github.com/openepi/sentinel/pkg/rules"
	"github.com/openepi/sentinel/pkg/schema"
)

// Manager creates and migrates the schema.
type Manager struct {
	operator db.Operator
}

// NewManager creates a schema manager on a connected operator.
func NewManager(op db.Operator) *Manager {
	return &Manager{operator: op}
}

// Create builds the complete schema: the fixed tables through GORM
// AutoMigrate, one raw table per configured form, and the variable
// indexes for alerting rules.
func (m *Manager) Create(
	ctx context.Context,
	cc *config.CountryConfig,
	cat *rules.Catalogue,
) error {
	pool := m.operator.Pool()
	if pool == nil {
		return NotConnectedError()
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{Conn: sqlDB}),
		&gorm.Config{},
	)
	if err != nil {
		return NewGORMError(err)
	}

	if err := schema.Migrate(gormDB); err != nil {
		return NewMigrateError(err)
	}

	if err := m.createFormTables(ctx, cc); err != nil {
		return err
	}
	return m.EnsureVariableIndexes(ctx, cat)
}

// createFormTables creates one jsonb-payload table per configured form.
func (m *Manager) createFormTables(
	ctx context.Context,
	cc *config.CountryConfig,
) error {
	pool := m.operator.Pool()
	for _, table := range cc.Tables {
		if _, err := pool.Exec(ctx, schema.FormTableDDL(table)); err != nil {
			return NewFormTableError(table, err)
		}
	}
	return nil
}

// EnsureVariableIndexes creates the variables->>'<id>' expression index
// for every threshold and double rule. Idempotent; also invoked when the
// catalogue is re-ingested.
func (m *Manager) EnsureVariableIndexes(
	ctx context.Context,
	cat *rules.Catalogue,
) error {
	pool := m.operator.Pool()
	if pool == nil {
		return NotConnectedError()
	}
	for _, v := range cat.AlertVariables() {
		if _, err := pool.Exec(ctx, schema.VariableIndexDDL(v.ID)); err != nil {
			return NewIndexError(v.ID, err)
		}
	}
	return nil
}
