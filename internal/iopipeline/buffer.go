// Package iopipeline runs the pipeline: a bounded ingestion buffer fed
// by the sources, and an orchestrator draining it in chunks through the
// processing stages.
package iopipeline

import (
	"sync"

	"github.com/openepi/sentinel/pkg/pipeline"
)

// Buffer is the bounded staging area between sources and the pipeline.
// A full buffer rejects the put, which is the backpressure signal the
// ingestor converts into a synchronous drain.
type Buffer struct {
	mu       sync.Mutex
	items    []pipeline.Item
	capacity int
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Put stages one record. It fails with BufferFullError at capacity and
// never blocks.
func (b *Buffer) Put(item pipeline.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		return NewBufferFullError(b.capacity)
	}
	b.items = append(b.items, item)
	return nil
}

// Take removes and returns up to max records in arrival order.
func (b *Buffer) Take(max int) []pipeline.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	n := len(b.items)
	if max > 0 && max < n {
		n = max
	}
	out := make([]pipeline.Item, n)
	copy(out, b.items[:n])
	b.items = b.items[n:]
	return out
}

// Len reports the staged record count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
