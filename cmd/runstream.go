package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openepi/sentinel/internal/iodb"
	"github.com/openepi/sentinel/internal/iopipeline"
	"github.com/openepi/sentinel/pkg/config"
)

func getRunStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-stream",
		Short: "Consume live submissions until interrupted",
		Long: `Run the configured stream source (queue long-poll, object-store
polling or synthetic data) through the pipeline until SIGINT or SIGTERM.
Buffered records are drained before exit.

Examples:
  sentinel run-stream
  sentinel run-stream --jobs 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream()
		},
	}
}

func runStream() error {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })

	for i := 0; i < streamJobs(cfg); i++ {
		source, err := buildSource(gctx, cfg, dep, cfg.Sources.Stream, false)
		if err != nil {
			return err
		}
		slog.Info("Starting stream source", "source", source.Name(), "job", i)
		g.Go(func() error {
			err := source.Run(gctx, ingestor.Emit)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	slog.Info("Stream stopped")
	return err
}

// streamJobs caps concurrent readers: polling one object-store prefix
// from several goroutines would only duplicate work.
func streamJobs(cfg *config.Config) int {
	if cfg.Sources.Stream == config.SourceAWSS3 {
		return 1
	}
	if cfg.JobsNumber < 1 {
		return 1
	}
	return cfg.JobsNumber
}
