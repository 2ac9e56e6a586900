package rules

import "fmt"

// ConfigError marks a catalogue entry that cannot be compiled. Fatal at
// startup: a broken rule catalogue must not code records.
type ConfigError struct {
	error
}

// MethodError is returned for a method name outside the current atoms and
// the documented legacy table.
func MethodError(id, method string) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: unknown method %q", id, method),
	}
}

// EmptyRuleError is returned when both condition and calculation are empty
// for a method that needs at least one.
func EmptyRuleError(id string) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: empty condition and calculation", id),
	}
}

// BoundsError is returned when a between condition is not "low,high".
func BoundsError(id, cond string) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: invalid bounds %q", id, cond),
	}
}

// CalculationError is returned when a calculation expression fails to
// compile.
func CalculationError(id, calc string, cause error) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: calculation %q: %w", id, calc, cause),
	}
}

// SecondaryConditionError is returned for a secondary condition that is
// not "col:val".
func SecondaryConditionError(id, cond string) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: invalid secondary condition %q", id, cond),
	}
}

// AlertTypeError is returned for an unparseable alert_type.
func AlertTypeError(s string) error {
	return ConfigError{
		error: fmt.Errorf("invalid alert_type %q", s),
	}
}

// MultipleLinkError is returned for an unknown multiple_link selector.
func MultipleLinkError(id, link string) error {
	return ConfigError{
		error: fmt.Errorf("rule %s: unknown multiple_link %q", id, link),
	}
}

// DuplicateRuleError is returned when two catalogue entries share an id.
func DuplicateRuleError(id string) error {
	return ConfigError{
		error: fmt.Errorf("duplicate rule id %s", id),
	}
}

// EvalError marks a rule that failed at evaluation time, typically an
// undefined symbol in a calculation. Policy: log at error, skip the rule,
// keep coding the record.
type EvalError struct {
	ID string
	error
}

// NewEvalError wraps an evaluation failure with the rule id.
func NewEvalError(id string, cause error) error {
	return EvalError{ID: id, error: fmt.Errorf("rule %s: %w", id, cause)}
}
