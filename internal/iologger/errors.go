package iologger

import "fmt"

// LogFileError signals that the configured log file cannot be opened.
type LogFileError struct {
	error
}

// NewLogFileError creates a LogFileError.
func NewLogFileError(path string, cause error) error {
	return &LogFileError{
		error: fmt.Errorf("cannot open log file %s: %w", path, cause),
	}
}
