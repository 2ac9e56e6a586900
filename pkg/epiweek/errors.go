package epiweek

import "fmt"

// SchemeError is returned for an unrecognized epi-week scheme string.
// This is a configuration error and is fatal at startup.
func SchemeError(spec string) error {
	return fmt.Errorf("unknown epi week scheme %q", spec)
}
