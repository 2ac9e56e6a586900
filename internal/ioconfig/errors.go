package ioconfig

import "fmt"

// LoadError marks a failed configuration or bootstrap file load. Fatal at
// startup.
type LoadError struct {
	error
}

// NewLoadError wraps a file load failure with its path.
func NewLoadError(path string, err error) error {
	return LoadError{error: fmt.Errorf("load %s: %w", path, err)}
}

// NewFieldError wraps a malformed field in a bootstrap file.
func NewFieldError(path, field, value string) error {
	return LoadError{error: fmt.Errorf("load %s: bad %s value %q", path, field, value)}
}
