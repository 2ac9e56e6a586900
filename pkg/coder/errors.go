package coder

import "fmt"

// TypeError marks an unusable data-type descriptor. Fatal at startup.
type TypeError struct {
	error
}

// NewTypeError wraps a data-type configuration problem.
func NewTypeError(name, msg string) error {
	return TypeError{error: fmt.Errorf("data type %s: %s", name, msg)}
}
