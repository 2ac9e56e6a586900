// Package sentinel holds the application-level lifecycle contracts and
// build metadata. The contracts are implemented by the impure internal
// packages; commands depend on these interfaces.
package sentinel

import (
	"context"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/rules"
)

var (
	// Version is set by build flags.
	Version = "dev"

	// Build is the build timestamp, set by build flags.
	Build = "n/a"
)

// SchemaManager creates the database schema: the fixed tables, one raw
// table per configured form, and the alert variable indexes.
type SchemaManager interface {
	Create(ctx context.Context, cc *config.CountryConfig, cat *rules.Catalogue) error
	EnsureVariableIndexes(ctx context.Context, cat *rules.Catalogue) error
}

// Optimizer runs post-import store maintenance.
type Optimizer interface {
	Optimize(ctx context.Context) error
}
