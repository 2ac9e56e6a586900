package iopopulate

import "fmt"

// SeedError wraps a failed reference-table seed.
type SeedError struct {
	error
}

// NewSeedError creates a SeedError.
func NewSeedError(table string, cause error) error {
	return &SeedError{
		error: fmt.Errorf("cannot seed %s: %w", table, cause),
	}
}
