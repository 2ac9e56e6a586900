package config

import "fmt"

// ConfigError marks an invalid configuration. Fatal at startup.
type ConfigError struct {
	error
}

// ValidationError wraps a human-readable validation failure.
func ValidationError(msg string) error {
	return ConfigError{error: fmt.Errorf("config: %s", msg)}
}
