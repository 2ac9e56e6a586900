package schema

import (
	"fmt"

	"gorm.io/gorm"
)

// AllModels returns the fixed models for GORM AutoMigrate. Raw form tables
// are created separately from the form registry.
func AllModels() []interface{} {
	return []interface{}{
		&Location{},
		&Device{},
		&AggregationVariable{},
		&Data{},
		&DisregardedData{},
		&Alert{},
		&StepMonitoring{},
	}
}

// Migrate runs GORM AutoMigrate to create or update the fixed schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// FormTableDDL returns the CREATE TABLE statement for one raw form table.
// Form tables store the submission payload as jsonb, keyed by uuid for
// idempotent replacement on reprocessing.
func FormTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id SERIAL PRIMARY KEY,
	uuid TEXT UNIQUE NOT NULL,
	data JSONB NOT NULL
)`, table)
}

// VariableIndexDDL returns the expression index statement for one alerting
// rule id on the coded data table. The multi-record alert detector filters
// on variables->>'<id>' for threshold and double rules.
func VariableIndexDDL(ruleID string) string {
	return fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "idx_data_var_%s" ON data ((variables->>'%s'))`,
		ruleID, ruleID,
	)
}
