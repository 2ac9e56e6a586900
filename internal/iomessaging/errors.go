package iomessaging

import "fmt"

// FacadeError wraps a failed notification delivery.
type FacadeError struct {
	error
}

// NewFacadeError creates a FacadeError.
func NewFacadeError(url string, cause error) error {
	return &FacadeError{
		error: fmt.Errorf("messaging facade %s: %w", url, cause),
	}
}

// StartDateError signals an unparseable messaging start date.
type StartDateError struct {
	error
}

// NewStartDateError creates a StartDateError.
func NewStartDateError(s string, cause error) error {
	return &StartDateError{
		error: fmt.Errorf("messaging start date %q: %w", s, cause),
	}
}
