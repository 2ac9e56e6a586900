package location

import "fmt"

// TreeError marks an invalid location tree. Fatal at startup.
type TreeError struct {
	error
}

func DuplicateLocationError(id int) error {
	return TreeError{error: fmt.Errorf("duplicate location id %d", id)}
}

func MultipleRootsError(a, b int) error {
	return TreeError{error: fmt.Errorf("multiple country roots: %d and %d", a, b)}
}

func NoRootError() error {
	return TreeError{error: fmt.Errorf("no country root in location tree")}
}

func MissingParentError(id, parent int) error {
	return TreeError{error: fmt.Errorf("location %d references missing parent %d", id, parent)}
}

func ParentLevelError(id int, level, parentLevel string) error {
	return TreeError{
		error: fmt.Errorf("location %d (%s) has parent at level %s, want a higher level",
			id, level, parentLevel),
	}
}

// ModeError is returned for an unparseable location mode string.
func ModeError(s string) error {
	return TreeError{error: fmt.Errorf("invalid location mode %q", s)}
}
