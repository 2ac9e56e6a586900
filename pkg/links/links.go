// Package links defines declarative joins between forms and the pure
// matching and ordering logic behind them. Query execution against the
// form tables lives in internal/iolink.
package links

import (
	"sort"
	"strings"

	"github.com/openepi/sentinel/pkg/record"
)

// Method names for column matching.
const (
	MethodMatch      = "match"
	MethodLowerMatch = "lower_match"
	MethodAlertMatch = "alert_match"
)

// Def is one declared link between two forms. FromColumns, ToColumns and
// Methods are parallel lists.
type Def struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	FromForm    string   `yaml:"from_form"`
	ToForm      string   `yaml:"to_form"`
	FromColumns []string `yaml:"from_columns"`
	ToColumns   []string `yaml:"to_columns"`
	Methods     []string `yaml:"methods"`
	ToCondition string   `yaml:"to_condition"`
	OrderBy     string   `yaml:"order_by"`
	UUID        string   `yaml:"uuid"`
}

// Validate checks the parallel-list invariant and the method names.
func (d *Def) Validate() error {
	if d.Name == "" || d.ToForm == "" {
		return NewDefError(d.Name, "missing name or to_form")
	}
	if len(d.FromColumns) == 0 ||
		len(d.FromColumns) != len(d.ToColumns) ||
		len(d.FromColumns) != len(d.Methods) {
		return NewDefError(d.Name, "from_columns, to_columns and methods must align")
	}
	for _, m := range d.Methods {
		switch m {
		case MethodMatch, MethodLowerMatch, MethodAlertMatch:
		default:
			return NewDefError(d.Name, "unknown method "+m)
		}
	}
	if d.ToCondition != "" && !strings.Contains(d.ToCondition, ":") {
		return NewDefError(d.Name, "to_condition must be col:val")
	}
	return nil
}

// MatchValue applies one link method to a from/to value pair. For
// alert_match the to-value must equal the last alertIDLen characters of
// the from-value.
func MatchValue(method, from, to string, alertIDLen int) bool {
	switch method {
	case MethodLowerMatch:
		return normalize(from) == normalize(to)
	case MethodAlertMatch:
		return Suffix(from, alertIDLen) == to
	default:
		return from == to
	}
}

// Suffix returns the last n characters of s, or all of s when shorter.
func Suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}

// FilterToCondition keeps only rows satisfying the link's col:val filter.
func (d *Def) FilterToCondition(rows []record.Payload) []record.Payload {
	if d.ToCondition == "" {
		return rows
	}
	col, val, _ := strings.Cut(d.ToCondition, ":")
	out := rows[:0]
	for _, r := range rows {
		if r.String(col) == val {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders rows by the link's order_by clause: "column;date" parses the
// column as a date, "column;lex" compares lexicographically. Rows that fail
// a date parse sort first.
func (d *Def) Sort(rows []record.Payload) {
	if d.OrderBy == "" {
		return
	}
	col, kind, _ := strings.Cut(d.OrderBy, ";")
	switch kind {
	case "date":
		sort.SliceStable(rows, func(i, j int) bool {
			di, erri := rows[i].Date(col)
			dj, errj := rows[j].Date(col)
			if erri != nil {
				return errj == nil
			}
			if errj != nil {
				return false
			}
			return di.Before(dj)
		})
	default:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].String(col) < rows[j].String(col)
		})
	}
}

// Table groups link definitions by trigger type and by to-form. Immutable
// after New.
type Table struct {
	byType   map[string][]*Def
	byToForm map[string][]*Def
}

// NewTable validates all defs and indexes them.
func NewTable(defs []*Def) (*Table, error) {
	t := &Table{
		byType:   make(map[string][]*Def),
		byToForm: make(map[string][]*Def),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		t.byType[d.Type] = append(t.byType[d.Type], d)
		t.byToForm[d.ToForm] = append(t.byToForm[d.ToForm], d)
	}
	return t, nil
}

// ForType returns links triggered by a data-type.
func (t *Table) ForType(typ string) []*Def {
	return t.byType[typ]
}

// ForToForm returns links whose additional form is the given form, used to
// rehydrate from-form records when a late to-form row arrives.
func (t *Table) ForToForm(form string) []*Def {
	return t.byToForm[form]
}
