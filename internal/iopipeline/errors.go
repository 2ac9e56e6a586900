package iopipeline

import "fmt"

// BufferFullError signals that the ingestion buffer is at capacity. The
// ingestor reacts by draining a chunk synchronously before retrying.
type BufferFullError struct {
	error
}

// NewBufferFullError creates a BufferFullError.
func NewBufferFullError(capacity int) error {
	return &BufferFullError{
		error: fmt.Errorf("ingestion buffer full at %d records", capacity),
	}
}
