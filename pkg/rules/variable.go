// Package rules implements the coding rule DSL: parsing catalogue entries
// into evaluable rules, evaluating them against form payloads, and indexing
// plain equality rules for O(1) sweeps.
package rules

import (
	"strconv"
	"strings"
)

// Variable is one catalogue entry as loaded from the coding list. It is the
// declarative form; Compile turns it into an evaluable Rule.
type Variable struct {
	// ID is the stable rule identifier, used as the key in coded
	// record variables.
	ID string

	// PK orders rules deterministically within a group.
	PK int

	// Type is the data-type this rule codes for.
	Type string

	// Form is the source form the rule reads.
	Form string

	// DBColumn names the columns the rule reads. Semicolons separate
	// operands of a composite method; commas list alternative columns
	// within one operand.
	DBColumn string

	// Method is the rule method, possibly composite ("match and not_null").
	Method string

	// Condition is the method argument, aligned with DBColumn by
	// semicolons for composites.
	Condition string

	// Calculation is an optional expression over the record columns.
	Calculation string

	// Category tags attached to the coded record when the rule fires.
	Category []string

	// Group joins mutually exclusive rules. Empty means the rule stands
	// alone.
	Group string

	// Priority selects among satisfied rules of a group; 0 means unset.
	Priority int

	// MultipleLink selects rows when the source form is a multi-row
	// subform: first, last, any, all, count.
	MultipleLink string

	// SecondaryCondition is an extra "col:val" AND gate on the main form.
	SecondaryCondition string

	// Alert marks the rule as alert-bearing.
	Alert bool

	// AlertType is "individual", "threshold:d,w[,hd,hw]" or "double".
	AlertType string

	// Disregard routes matching records to the disregarded table.
	Disregard bool
}

// AlertKind classifies the alert behavior of a rule.
type AlertKind int

const (
	AlertNone AlertKind = iota
	AlertIndividual
	AlertThreshold
	AlertDouble
)

// ThresholdSpec holds the parsed limits of a threshold alert type. Hospital
// limits default to the general limits when not given.
type ThresholdSpec struct {
	Daily      int
	Weekly     int
	HospDaily  int
	HospWeekly int
}

// ParseAlertType parses an alert_type string.
func ParseAlertType(s string) (AlertKind, *ThresholdSpec, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return AlertNone, nil, nil
	case s == "individual":
		return AlertIndividual, nil, nil
	case s == "double":
		return AlertDouble, nil, nil
	case strings.HasPrefix(s, "threshold:"):
		parts := strings.Split(strings.TrimPrefix(s, "threshold:"), ",")
		if len(parts) != 2 && len(parts) != 4 {
			return AlertNone, nil, AlertTypeError(s)
		}
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 1 {
				return AlertNone, nil, AlertTypeError(s)
			}
			nums[i] = n
		}
		spec := &ThresholdSpec{Daily: nums[0], Weekly: nums[1]}
		spec.HospDaily, spec.HospWeekly = nums[0], nums[1]
		if len(nums) == 4 {
			spec.HospDaily, spec.HospWeekly = nums[2], nums[3]
		}
		return AlertThreshold, spec, nil
	default:
		return AlertNone, nil, AlertTypeError(s)
	}
}

// AlertKind returns the parsed alert classification, ignoring parse errors.
// Load validates alert types, so by the time rules run this cannot fail.
func (v *Variable) AlertKind() AlertKind {
	if !v.Alert {
		return AlertNone
	}
	kind, _, _ := ParseAlertType(v.AlertType)
	return kind
}

// splitList splits a comma list, trimming whitespace and dropping empties.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
