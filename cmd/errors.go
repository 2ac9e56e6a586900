package cmd

import "fmt"

// SourceKindError signals a source name the build cannot wire.
type SourceKindError struct {
	error
}

// NewSourceKindError creates a SourceKindError.
func NewSourceKindError(kind string) error {
	return &SourceKindError{
		error: fmt.Errorf("source %q is not supported", kind),
	}
}
