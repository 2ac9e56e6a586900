package iooptimize

import (
	"errors"
	"fmt"
)

// OptimizeError wraps post-import maintenance failures.
type OptimizeError struct {
	error
}

// NotConnectedError signals maintenance on a closed operator.
func NotConnectedError() error {
	return &OptimizeError{
		error: errors.New("database operator is not connected"),
	}
}

// NewVacuumError creates an OptimizeError for a failed VACUUM ANALYZE.
func NewVacuumError(cause error) error {
	return &OptimizeError{
		error: fmt.Errorf("vacuum analyze failed: %w", cause),
	}
}
