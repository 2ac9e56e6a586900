package links

import "fmt"

// DefError marks an invalid link definition. Fatal at startup.
type DefError struct {
	error
}

func NewDefError(name, reason string) error {
	return DefError{error: fmt.Errorf("link %q: %s", name, reason)}
}
