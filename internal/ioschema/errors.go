package ioschema

import (
	"errors"
	"fmt"
)

// SchemaError marks a failed schema operation. Fatal at startup.
type SchemaError struct {
	error
}

// NotConnectedError is returned when a schema operation runs before the
// operator connected.
func NotConnectedError() error {
	return SchemaError{error: errors.New("schema operation without database connection")}
}

// NewGORMError wraps a GORM session failure.
func NewGORMError(err error) error {
	return SchemaError{error: fmt.Errorf("open gorm session: %w", err)}
}

// NewMigrateError wraps an AutoMigrate failure.
func NewMigrateError(err error) error {
	return SchemaError{error: fmt.Errorf("migrate schema: %w", err)}
}

// NewFormTableError wraps a raw form table creation failure.
func NewFormTableError(table string, err error) error {
	return SchemaError{error: fmt.Errorf("create form table %s: %w", table, err)}
}

// NewIndexError wraps a variable index creation failure.
func NewIndexError(ruleID string, err error) error {
	return SchemaError{error: fmt.Errorf("create variable index for %s: %w", ruleID, err)}
}
