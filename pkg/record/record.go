// Package record provides the raw submission model and typed access to
// schema-flexible form payloads. Payload values are what encoding/json
// produces for arbitrary documents: strings, float64, bool, nil, or lists
// of those. All coercions (date parse, int parse, list-vs-scalar) happen
// here so that the rest of the pipeline reads through one accessor.
package record

import (
	"strconv"
	"strings"
	"time"
)

// Payload is the schema-flexible body of one form submission.
type Payload map[string]any

// RawRecord is one device-tagged form submission as it enters the pipeline.
// Uniqueness is (Form, UUID).
type RawRecord struct {
	Form string  `json:"form"`
	UUID string  `json:"uuid"`
	Data Payload `json:"data"`
}

// Get returns the value for a column and whether the column is present.
func (p Payload) Get(col string) (any, bool) {
	v, ok := p[col]
	return v, ok
}

// Has reports whether a column is present and neither nil nor empty string.
func (p Payload) Has(col string) bool {
	v, ok := p[col]
	if !ok || v == nil {
		return false
	}
	s, isStr := v.(string)
	return !isStr || s != ""
}

// String returns the column value coerced to a string. Missing columns and
// nil values yield "". Numbers are formatted without a trailing ".0" when
// they are integral, matching the way form exports serialize counts.
func (p Payload) String(col string) string {
	v, ok := p[col]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Stringify coerces a single payload value to a string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// Float returns the column value coerced to a float64.
func (p Payload) Float(col string) (float64, bool) {
	v, ok := p[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Int returns the column value coerced to an int, or 0 when the value is
// missing or not numeric.
func (p Payload) Int(col string) int {
	f, ok := p.Float(col)
	if !ok {
		return 0
	}
	return int(f)
}

// Date parses the column value as a timestamp. Empty or missing values
// return a ParseError.
func (p Payload) Date(col string) (time.Time, error) {
	s := strings.TrimSpace(p.String(col))
	if s == "" {
		return time.Time{}, EmptyDateError(col)
	}
	return ParseDate(s)
}

// dateLayouts are tried in order. Form exports use ISO 8601 variants;
// some upstream collectors still emit RFC 2822 submission dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// ParseDate parses a timestamp in any of the accepted wire formats.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, DateParseError(s)
}

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FlattenLists rewrites every list-valued field into a comma-joined
// string. Multi-select form widgets submit lists; downstream rules and
// persistence expect flat strings.
func (p Payload) FlattenLists() {
	for k, v := range p {
		if list, ok := v.([]any); ok {
			p[k] = Stringify(list)
		}
	}
}

// Clone returns a shallow copy of the payload. List values are already
// flattened by the time clones are taken, so a shallow copy is enough.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
