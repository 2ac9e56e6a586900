package iopipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/schema"
)

// Monitor records per-stage timings. The persistence stage implements it
// on the step_monitoring table.
type Monitor interface {
	WriteStepMonitoring(ctx context.Context, m *schema.StepMonitoring) error
}

// Orchestrator drains the buffer in chunks and runs each chunk through
// the stage list in order. One chunk is one commit: the final stage
// persists everything the chunk accumulated.
type Orchestrator struct {
	buffer        *Buffer
	stages        []pipeline.Stage
	chunkSize     int
	drainInterval time.Duration
	monitor       Monitor

	// drainMu serializes chunks so a producer-triggered drain cannot
	// interleave with the ticker.
	drainMu sync.Mutex
}

// NewOrchestrator wires the consumer side of the pipeline.
func NewOrchestrator(
	buffer *Buffer,
	stages []pipeline.Stage,
	cfg *config.PipelineConfig,
	monitor Monitor,
) *Orchestrator {
	return &Orchestrator{
		buffer:        buffer,
		stages:        stages,
		chunkSize:     cfg.ChunkSize,
		drainInterval: time.Duration(cfg.DrainIntervalSeconds) * time.Second,
		monitor:       monitor,
	}
}

// Run drains on a ticker until the context is cancelled, then performs a
// final drain so buffered records are not lost on shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.drainAll(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			o.drainAll(ctx)
		}
	}
}

func (o *Orchestrator) drainAll(ctx context.Context) {
	for {
		n, err := o.DrainOnce(ctx)
		if err != nil {
			slog.Error("Chunk failed", "error", err, "records", n)
			return
		}
		if n == 0 {
			return
		}
	}
}

// DrainOnce takes one chunk of records from the buffer and runs it
// through every stage. It returns the number of records taken; zero
// means the buffer was empty.
func (o *Orchestrator) DrainOnce(ctx context.Context) (int, error) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	items := o.buffer.Take(o.chunkSize)
	if len(items) == 0 {
		return 0, nil
	}
	taken := len(items)

	chunk := pipeline.NewChunk()
	for _, stage := range o.stages {
		start := time.Now()
		next, err := stage.Run(ctx, chunk, items)
		if err != nil {
			return taken, err
		}
		o.recordStep(ctx, stage.Name(), start, len(items))
		items = next
	}
	return taken, nil
}

// recordStep writes one timing row. Monitoring never fails a chunk.
func (o *Orchestrator) recordStep(
	ctx context.Context,
	step string,
	start time.Time,
	n int,
) {
	if o.monitor == nil {
		return
	}
	end := time.Now()
	m := &schema.StepMonitoring{
		Step:     step,
		Start:    start,
		End:      end,
		Duration: end.Sub(start).Seconds(),
		N:        n,
	}
	if err := o.monitor.WriteStepMonitoring(ctx, m); err != nil {
		slog.Warn("Step monitoring write failed", "step", step, "error", err)
	}
}
