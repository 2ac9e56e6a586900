package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mainForms = map[string]string{"case": "demo_case"}

func TestLoadGroups(t *testing.T) {
	vars := []*Variable{
		{ID: "b", PK: 2, Type: "case", Form: "demo_case", Group: "gender",
			Method: "match", DBColumn: "gender", Condition: "female", Alert: true, AlertType: "individual"},
		{ID: "a", PK: 1, Type: "case", Form: "demo_case", Group: "gender",
			Method: "match", DBColumn: "gender", Condition: "male", Alert: true, AlertType: "individual"},
		{ID: "c", PK: 3, Type: "case", Form: "demo_case",
			Method: "not_null", DBColumn: "icd_code"},
	}

	cat, err := Load(vars, mainForms)
	require.NoError(t, err)

	groups := cat.Groups("case")
	require.Len(t, groups, 2)

	// pk sorting puts "a" before "b" inside the gender group.
	gender := groups[0]
	assert.Equal(t, "gender", gender.Name)
	require.Len(t, gender.Rules, 2)
	assert.Equal(t, "a", gender.Rules[0].Var.ID)
	assert.Equal(t, "b", gender.Rules[1].Var.ID)
	assert.False(t, gender.HasPriority)
}

func TestLoadPriorityDetection(t *testing.T) {
	vars := []*Variable{
		{ID: "a", PK: 1, Type: "case", Form: "demo_case", Group: "severity",
			Method: "match", DBColumn: "status", Condition: "mild", Priority: 2, Disregard: true},
		{ID: "b", PK: 2, Type: "case", Form: "demo_case", Group: "severity",
			Method: "match", DBColumn: "status", Condition: "severe", Priority: 1, Disregard: true},
	}

	cat, err := Load(vars, mainForms)
	require.NoError(t, err)

	groups := cat.Groups("case")
	require.Len(t, groups, 1)
	assert.True(t, groups[0].HasPriority)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		vars []*Variable
	}{
		{
			"duplicate id",
			[]*Variable{
				{ID: "a", PK: 1, Method: "not_null", DBColumn: "x"},
				{ID: "a", PK: 2, Method: "not_null", DBColumn: "x"},
			},
		},
		{
			"empty condition and calculation",
			[]*Variable{
				{ID: "a", PK: 1, Method: "match", DBColumn: "x"},
			},
		},
		{
			"unknown method",
			[]*Variable{
				{ID: "a", PK: 1, Method: "regex", DBColumn: "x", Condition: "y"},
			},
		},
		{
			"bad alert type",
			[]*Variable{
				{ID: "a", PK: 1, Method: "match", DBColumn: "x", Condition: "y",
					Alert: true, AlertType: "hourly"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.vars, mainForms)
			assert.Error(t, err)
		})
	}
}

func TestMatchIndex(t *testing.T) {
	vars := []*Variable{
		// Eligible: plain match, single column, main form, no behavior.
		{ID: "icd_1", PK: 1, Type: "case", Form: "demo_case",
			Method: "match", DBColumn: "icd_code", Condition: "A00,A01",
			Category: []string{"cholera"}},
		// Not eligible: alert rules stay in groups.
		{ID: "cmd_1", PK: 2, Type: "case", Form: "demo_case",
			Method: "match", DBColumn: "icd_code", Condition: "A00",
			Alert: true, AlertType: "individual"},
		// Not eligible: priority rules stay in groups.
		{ID: "pri_1", PK: 3, Type: "case", Form: "demo_case", Group: "g",
			Method: "match", DBColumn: "icd_code", Condition: "A02", Priority: 1},
		// Not eligible: reads a linked form, not the main form.
		{ID: "lab_1", PK: 4, Type: "case", Form: "demo_lab",
			Method: "match", DBColumn: "result", Condition: "positive"},
	}

	cat, err := Load(vars, mainForms)
	require.NoError(t, err)

	idx := cat.MatchEntries("case")
	require.NotNil(t, idx)

	entries := idx["icd_code"]["A00"]
	require.Len(t, entries, 1)
	assert.Equal(t, "icd_1", entries[0].ID)
	assert.Equal(t, []string{"cholera"}, entries[0].Categories)

	entries = idx["icd_code"]["A01"]
	require.Len(t, entries, 1)
	assert.Equal(t, "icd_1", entries[0].ID)

	// Indexed rules are consumed; the rest stay in groups.
	ids := map[string]bool{}
	for _, g := range cat.Groups("case") {
		for _, r := range g.Rules {
			ids[r.Var.ID] = true
		}
	}
	assert.False(t, ids["icd_1"])
	assert.True(t, ids["cmd_1"])
	assert.True(t, ids["pri_1"])
	assert.True(t, ids["lab_1"])
}

func TestAlertVariables(t *testing.T) {
	vars := []*Variable{
		{ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
			Method: "match", DBColumn: "icd_code", Condition: "A00",
			Alert: true, AlertType: "threshold:3,5"},
		{ID: "cmd_2", PK: 2, Type: "case", Form: "demo_case",
			Method: "match", DBColumn: "icd_code", Condition: "A01",
			Alert: true, AlertType: "double"},
		{ID: "cmd_3", PK: 3, Type: "case", Form: "demo_case",
			Method: "match", DBColumn: "icd_code", Condition: "A02",
			Alert: true, AlertType: "individual"},
	}

	cat, err := Load(vars, mainForms)
	require.NoError(t, err)

	alerting := cat.AlertVariables()
	require.Len(t, alerting, 2)
	assert.Equal(t, "cmd_1", alerting[0].ID)
	assert.Equal(t, "cmd_2", alerting[1].ID)
}
