package record

import "fmt"

// ParseError marks a record value that could not be interpreted. Policy per
// the error model: log at debug, drop the record, keep going.
type ParseError struct {
	error
}

// DateParseError is returned when a value matches none of the accepted
// date layouts.
func DateParseError(value string) error {
	return ParseError{
		error: fmt.Errorf("unparseable date %q", value),
	}
}

// EmptyDateError is returned when a date column is missing or empty.
func EmptyDateError(column string) error {
	return ParseError{
		error: fmt.Errorf("empty date column %q", column),
	}
}
