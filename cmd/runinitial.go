package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openepi/sentinel/internal/iodb"
	"github.com/openepi/sentinel/internal/iooptimize"
	"github.com/openepi/sentinel/internal/iopipeline"
	"github.com/openepi/sentinel/pkg/pipeline"
)

func getRunInitialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-initial",
		Short: "Import a historical snapshot through the full pipeline",
		Long: `Run one pass of the configured initial source (object-store
snapshot, local CSV files or synthetic data) through the pipeline, then
optimize the store.

Examples:
  sentinel run-initial
  sentinel run-initial --data-dir ./snapshots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitial()
		},
	}
}

func runInitial() error {
	ctx := context.Background()
	start := time.Now()

	dep, err := loadDeployment(cfg)
	if err != nil {
		return err
	}

	op := iodb.NewPgxOperator()
	if err := op.Connect(ctx, &cfg.Database); err != nil {
		return err
	}
	defer op.Close()

	stages, writer, err := buildStages(cfg, dep, op.Pool())
	if err != nil {
		return err
	}

	buffer := iopipeline.NewBuffer(cfg.Pipeline.BufferSize)
	orch := iopipeline.NewOrchestrator(buffer, stages, &cfg.Pipeline, writer)
	ingestor := iopipeline.NewIngestor(buffer, orch)

	source, err := buildSource(ctx, cfg, dep, cfg.Sources.Initial, true)
	if err != nil {
		return err
	}
	slog.Info("Starting initial import", "source", source.Name())

	bar := pb.StartNew(0)
	count := 0
	emit := func(ctx context.Context, item pipeline.Item) error {
		if err := ingestor.Emit(ctx, item); err != nil {
			return err
		}
		count++
		bar.Increment()
		return nil
	}

	if err := source.Run(ctx, emit); err != nil {
		bar.Finish()
		return err
	}

	// Flush what the backpressure drains left behind.
	for {
		n, err := orch.DrainOnce(ctx)
		if err != nil {
			bar.Finish()
			return err
		}
		if n == 0 {
			break
		}
	}
	bar.Finish()

	if err := iooptimize.NewOptimizer(op).Optimize(ctx); err != nil {
		return err
	}

	slog.Info("Initial import complete",
		"records", humanize.Comma(int64(count)),
		"duration", time.Since(start).Round(time.Second))
	return nil
}
