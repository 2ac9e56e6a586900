package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/record"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		def       Def
		wantError bool
	}{
		{
			"valid",
			Def{Name: "alert_investigation", Type: "case", FromForm: "demo_case",
				ToForm: "demo_alert", FromColumns: []string{"uuid"},
				ToColumns: []string{"alert_id"}, Methods: []string{"alert_match"}},
			false,
		},
		{
			"misaligned lists",
			Def{Name: "bad", ToForm: "demo_alert",
				FromColumns: []string{"a", "b"}, ToColumns: []string{"a"},
				Methods: []string{"match"}},
			true,
		},
		{
			"unknown method",
			Def{Name: "bad", ToForm: "demo_alert", FromColumns: []string{"a"},
				ToColumns: []string{"a"}, Methods: []string{"fuzzy"}},
			true,
		},
		{
			"bad to_condition",
			Def{Name: "bad", ToForm: "demo_alert", FromColumns: []string{"a"},
				ToColumns: []string{"a"}, Methods: []string{"match"},
				ToCondition: "return"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchValue(t *testing.T) {
	tests := []struct {
		name   string
		method string
		from   string
		to     string
		want   bool
	}{
		{"match equal", MethodMatch, "abc", "abc", true},
		{"match differs", MethodMatch, "abc", "abd", false},
		{"lower_match normalizes", MethodLowerMatch, "Non-Com", "non_com", true},
		{"alert_match suffix", MethodAlertMatch, "abcdefghijkl", "ghijkl", true},
		{"alert_match wrong suffix", MethodAlertMatch, "abcdefghijkl", "abcdef", false},
		{"alert_match short value", MethodAlertMatch, "abc", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchValue(tt.method, tt.from, tt.to, 6))
		})
	}
}

// Matching alerts are filtered by to_condition and sorted by visit date,
// ascending.
func TestToConditionAndOrder(t *testing.T) {
	def := Def{
		Name: "alert_investigation", Type: "case",
		FromForm: "demo_case", ToForm: "demo_alert",
		FromColumns: []string{"meta/instanceID"},
		ToColumns:   []string{"alert_id"},
		Methods:     []string{"alert_match"},
		ToCondition: "visit:return",
		OrderBy:     "visit_date;date",
	}
	require.NoError(t, def.Validate())

	rows := []record.Payload{
		{"alert_id": "fghijk", "visit": "new", "visit_date": "2017-06-01"},
		{"alert_id": "fghijk", "visit": "return", "visit_date": "2017-06-20"},
		{"alert_id": "fghijk", "visit": "return", "visit_date": "2017-06-10"},
	}

	kept := def.FilterToCondition(rows)
	require.Len(t, kept, 2)

	def.Sort(kept)
	assert.Equal(t, "2017-06-10", kept[0].String("visit_date"))
	assert.Equal(t, "2017-06-20", kept[1].String("visit_date"))
}

func TestSortLexicographic(t *testing.T) {
	def := Def{OrderBy: "name;lex"}
	rows := []record.Payload{
		{"name": "b"}, {"name": "a"}, {"name": "c"},
	}
	def.Sort(rows)
	assert.Equal(t, "a", rows[0].String("name"))
	assert.Equal(t, "c", rows[2].String("name"))
}

func TestTable(t *testing.T) {
	defs := []*Def{
		{Name: "l1", Type: "case", FromForm: "demo_case", ToForm: "demo_alert",
			FromColumns: []string{"a"}, ToColumns: []string{"a"}, Methods: []string{"match"}},
		{Name: "l2", Type: "visit", FromForm: "demo_visit", ToForm: "demo_lab",
			FromColumns: []string{"a"}, ToColumns: []string{"a"}, Methods: []string{"match"}},
	}
	table, err := NewTable(defs)
	require.NoError(t, err)

	assert.Len(t, table.ForType("case"), 1)
	assert.Empty(t, table.ForType("lab"))
	assert.Len(t, table.ForToForm("demo_lab"), 1)
	assert.Equal(t, "l2", table.ForToForm("demo_lab")[0].Name)
}
