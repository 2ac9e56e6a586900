// Package iooptimize tunes the store after a bulk import: it refreshes
// planner statistics and reclaims dead tuples left by the delete-then-
// insert write pattern.
package iooptimize

import (
	"context"
	"log/slog"
	"time"

	"github.com/openepi/sentinel/pkg/db"
)

// Optimizer runs post-import maintenance.
type Optimizer struct {
	operator db.Operator
}

// NewOptimizer creates an optimizer on a connected operator.
func NewOptimizer(op db.Operator) *Optimizer {
	return &Optimizer{operator: op}
}

// Optimize runs VACUUM ANALYZE. It must execute outside a transaction,
// which the pool's simple exec satisfies.
func (o *Optimizer) Optimize(ctx context.Context) error {
	pool := o.operator.Pool()
	if pool == nil {
		return NotConnectedError()
	}

	slog.Info("Running VACUUM ANALYZE")
	start := time.Now()
	if _, err := pool.Exec(ctx, "VACUUM ANALYZE"); err != nil {
		return NewVacuumError(err)
	}
	slog.Info("VACUUM ANALYZE done",
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}
