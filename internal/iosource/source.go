// Package iosource implements the record sources feeding the ingestion
// buffer: object-store polling, queue long-polling, local CSV snapshots
// and a synthetic generator for demos and load tests.
package iosource

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
)

// Emit hands one record to the ingestion buffer. Emit blocks while the
// buffer drains, which is the pipeline's backpressure.
type Emit func(ctx context.Context, item pipeline.Item) error

// Source produces records until its input is exhausted (initial sources)
// or the context is cancelled (stream sources).
type Source interface {
	Name() string
	Run(ctx context.Context, emit Emit) error
}

// decodeEnvelopes reads newline-delimited JSON envelopes
// ({"form":..., "uuid":..., "data":{...}}) and emits each record.
func decodeEnvelopes(ctx context.Context, r io.Reader, emit Emit) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.RawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if err := emit(ctx, pipeline.Item{Form: rec.Form, Record: rec}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
