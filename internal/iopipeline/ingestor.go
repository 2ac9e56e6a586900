package iopipeline

import (
	"context"
	"errors"

	"github.com/openepi/sentinel/pkg/pipeline"
)

// Ingestor is the producer-side adapter: sources emit records into the
// buffer through it. When the buffer is full it drains one chunk
// synchronously on the producer's goroutine and retries, so ingestion
// can never outrun persistence.
type Ingestor struct {
	buffer *Buffer
	orch   *Orchestrator
}

// NewIngestor wires the producer side of the pipeline.
func NewIngestor(buffer *Buffer, orch *Orchestrator) *Ingestor {
	return &Ingestor{buffer: buffer, orch: orch}
}

// Emit stages one record, draining on backpressure. It satisfies the
// sources' emit contract.
func (i *Ingestor) Emit(ctx context.Context, item pipeline.Item) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := i.buffer.Put(item)
		if err == nil {
			return nil
		}
		var full *BufferFullError
		if !errors.As(err, &full) {
			return err
		}
		if _, err := i.orch.DrainOnce(ctx); err != nil {
			return err
		}
	}
}
