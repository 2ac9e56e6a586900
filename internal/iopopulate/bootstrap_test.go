package iopopulate

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/rules"
)

func TestLocationRow(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	point := orb.Point{35.5, 33.2}
	l := &location.Location{
		ID:         4,
		Name:       "Clinic A",
		Level:      location.LevelClinic,
		Parent:     3,
		DeviceIDs:  []string{"dev1", "dev2"},
		Point:      &point,
		ClinicType: "Hospital",
		CaseReport: true,
		CaseType:   []string{"mh", "ncd"},
		StartDate:  start,
		Population: 1200,
	}

	row, err := locationRow(l, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, row.ID)
	assert.Equal(t, "clinic", row.Level)
	assert.Equal(t, 3, row.ParentLocation)
	assert.Equal(t, "dev1,dev2", row.DeviceID)
	assert.Equal(t, "33.200000,35.500000", row.PointLocation)
	assert.Equal(t, "mh,ncd", row.CaseType)
	assert.Equal(t, 1, row.CountryLocationID)
	assert.Empty(t, row.Area)
}

func TestLocationRowArea(t *testing.T) {
	l := &location.Location{
		ID:    3,
		Name:  "Hilltop",
		Level: location.LevelDistrict,
		Area: orb.MultiPolygon{{
			{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
		}},
	}

	row, err := locationRow(l, 1)
	require.NoError(t, err)
	assert.Contains(t, row.Area, `"MultiPolygon"`)
}

func TestVariableRow(t *testing.T) {
	v := &rules.Variable{
		ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
		DBColumn: "icd_code", Method: "match", Condition: "A00",
		Category: []string{"cd", "communicable"}, Group: "cmd_1",
		Alert: true, AlertType: "individual",
	}

	row := variableRow(v)
	assert.Equal(t, "cmd_1", row.ID)
	assert.Equal(t, "cd,communicable", row.Category)
	assert.Equal(t, "cmd_1", row.VariableGroup)
	assert.True(t, row.Alert)
	assert.Equal(t, "individual", row.AlertType)
}
