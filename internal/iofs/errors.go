package iofs

import "fmt"

// FSError wraps filesystem preparation failures.
type FSError struct {
	error
}

// NewCreateDirError creates an FSError for a directory that cannot be
// created.
func NewCreateDirError(dir string, cause error) error {
	return &FSError{
		error: fmt.Errorf("cannot create directory %s: %w", dir, cause),
	}
}

// NewCopyFileError creates an FSError for a default file that cannot be
// written.
func NewCopyFileError(path string, cause error) error {
	return &FSError{
		error: fmt.Errorf("cannot write %s: %w", path, cause),
	}
}
