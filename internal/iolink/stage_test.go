package iolink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/coder"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/rules"
)

func stageTree(t *testing.T) *location.Tree {
	t.Helper()
	locs := []*location.Location{
		{ID: 1, Name: "Demo", Level: location.LevelCountry},
		{ID: 2, Name: "North", Level: location.LevelRegion, Parent: 1},
		{ID: 3, Name: "District A", Level: location.LevelDistrict, Parent: 2},
		{ID: 4, Name: "Clinic 1", Level: location.LevelClinic, Parent: 3,
			DeviceIDs: []string{"dev1"}},
	}
	tree, err := location.New(locs, []*location.Device{{DeviceID: "dev1"}})
	require.NoError(t, err)
	return tree
}

func TestCodingStage(t *testing.T) {
	cc := linkCountry()
	vars := []*rules.Variable{
		{ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
			DBColumn: "icd_code", Method: "match", Condition: "A00",
			Alert: true, AlertType: "individual"},
	}
	cat, err := rules.Load(vars, cc.MainForms())
	require.NoError(t, err)
	lt, err := links.NewTable(nil)
	require.NoError(t, err)
	scheme, err := epiweek.Parse("international", nil)
	require.NoError(t, err)
	cd, err := coder.New(cc, cat, stageTree(t), scheme, lt)
	require.NoError(t, err)

	stage := NewCodingStage(cc, NewResolver(cc, lt, &fakeLinkStore{}), cd)
	assert.Equal(t, "link_and_code", stage.Name())

	chunk := pipeline.NewChunk()
	items := []pipeline.Item{{
		Form: "demo_case",
		Record: record.RawRecord{
			Form: "demo_case",
			UUID: "abcdefghijkl",
			Data: record.Payload{
				"meta/instanceID": "abcdefghijkl",
				"deviceid":        "dev1",
				"icd_code":        "A00",
				"pt./visit_date":  "2017-06-10",
			},
		},
	}}

	out, err := stage.Run(context.Background(), chunk, items)
	require.NoError(t, err)
	assert.Len(t, out, 1, "items pass through to the alert detector")

	coded := chunk.Coded()
	require.Len(t, coded, 1)
	assert.Equal(t, "abcdefghijkl", coded[0].UUID)
	assert.Equal(t, "case", coded[0].Type)
	assert.Equal(t, 4, coded[0].Clinic)
	assert.Equal(t, 1, coded[0].Variables["cmd_1"])
	assert.Equal(t, "individual", coded[0].Variables["alert_type"])
}
