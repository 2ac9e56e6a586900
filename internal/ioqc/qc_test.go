package ioqc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/rules"
)

func qcTree(t *testing.T) *location.Tree {
	t.Helper()
	locs := []*location.Location{
		{ID: 1, Name: "Demo", Level: location.LevelCountry},
		{ID: 2, Name: "North", Level: location.LevelRegion, Parent: 1},
		{ID: 3, Name: "District A", Level: location.LevelDistrict, Parent: 2},
		{ID: 4, Name: "Clinic 1", Level: location.LevelClinic, Parent: 3,
			DeviceIDs: []string{"dev1", "dev2"}},
	}
	devices := []*location.Device{
		{DeviceID: "dev1"},
		{DeviceID: "dev2", StartDate: time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	tree, err := location.New(locs, devices)
	require.NoError(t, err)
	return tree
}

func qcCountry() *config.CountryConfig {
	return &config.CountryConfig{
		Name:   "demo",
		Tables: map[string]string{"demo_case": "demo_case"},
		DataTypes: []config.DataType{
			{Name: "case", Form: "demo_case", DateColumn: "pt./visit_date",
				Var: "tot_1", Location: "deviceid"},
		},
		AlertIDLength: 6,
	}
}

func newQC(t *testing.T, cc *config.CountryConfig, vars []*rules.Variable) *QualityControl {
	t.Helper()
	cat, err := rules.Load(vars, cc.MainForms())
	require.NoError(t, err)
	scheme, err := epiweek.Parse("international", nil)
	require.NoError(t, err)
	exclusions := map[string]map[string]bool{
		"demo_case": {"excluded-uuid": true},
	}
	qc, err := NewQualityControl(cc, cat, qcTree(t), scheme, exclusions)
	require.NoError(t, err)
	return qc
}

func qcItem(uuid string, mutate func(record.Payload)) pipeline.Item {
	p := record.Payload{
		"meta/instanceID": uuid,
		"deviceid":        "dev1",
		"pt./visit_date":  "2017-06-10",
		"SubmissionDate":  "2017-06-10T00:00:00Z",
	}
	if mutate != nil {
		mutate(p)
	}
	return pipeline.Item{Form: "demo_case", Record: record.RawRecord{Form: "demo_case", Data: p}}
}

func runQC(t *testing.T, qc *QualityControl, items ...pipeline.Item) ([]pipeline.Item, *pipeline.Chunk) {
	t.Helper()
	chunk := pipeline.NewChunk()
	out, err := qc.Run(context.Background(), chunk, items)
	require.NoError(t, err)
	return out, chunk
}

func TestAdmitStagesRawRow(t *testing.T) {
	qc := newQC(t, qcCountry(), nil)
	out, chunk := runQC(t, qc, qcItem("u1", nil))

	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].Record.UUID)
	assert.Contains(t, chunk.RawRows("demo_case"), "u1")
}

func TestDropWithoutUUID(t *testing.T) {
	qc := newQC(t, qcCountry(), nil)
	out, _ := runQC(t, qc, qcItem("", func(p record.Payload) {
		delete(p, "meta/instanceID")
	}))
	assert.Empty(t, out)
}

func TestFractionBoundaries(t *testing.T) {
	cc := qcCountry()
	cc.Fraction = map[string]float64{"demo_case": 0}
	qc := newQC(t, cc, nil)
	qc.randFloat = func() float64 { return 0.5 }
	out, _ := runQC(t, qc, qcItem("u1", nil))
	assert.Empty(t, out, "fraction 0 admits nothing")

	cc.Fraction["demo_case"] = 1
	qc = newQC(t, cc, nil)
	qc.randFloat = func() float64 { return 0.999999 }
	out, _ = runQC(t, qc, qcItem("u1", nil))
	assert.Len(t, out, 1, "fraction 1 admits everything")
}

func TestOnlyImportAfter(t *testing.T) {
	cc := qcCountry()
	cc.OnlyImportAfter = map[string]string{"demo_case": "2017-07-01"}
	qc := newQC(t, cc, nil)

	out, _ := runQC(t, qc, qcItem("u1", nil))
	assert.Empty(t, out)

	out, _ = runQC(t, qc, qcItem("u2", func(p record.Payload) {
		p["SubmissionDate"] = "2017-07-02T00:00:00Z"
	}))
	assert.Len(t, out, 1)
}

func TestExclusionList(t *testing.T) {
	qc := newQC(t, qcCountry(), nil)
	out, _ := runQC(t, qc, qcItem("excluded-uuid", nil))
	assert.Empty(t, out)
}

func TestImportRules(t *testing.T) {
	cc := qcCountry()
	cc.QualityControl = []string{"demo_case"}
	vars := []*rules.Variable{
		{ID: "qc_discard", PK: 1, Type: "import", Form: "demo_case",
			DBColumn: "icd_code", Method: "not_null", Category: []string{"discard"}},
		{ID: "qc_replace", PK: 2, Type: "import", Form: "demo_case",
			DBColumn: "age", Method: "not_null", Category: []string{"replace:age_years"}},
		{ID: "qc_null", PK: 3, Type: "import", Form: "demo_case",
			DBColumn: "weight", Method: "between", Condition: "0,500"},
	}

	t.Run("discard", func(t *testing.T) {
		qc := newQC(t, cc, vars)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			p["age"] = "30"
			p["weight"] = "70"
		}))
		assert.Empty(t, out, "missing icd_code discards the record")
	})

	t.Run("replace and null out", func(t *testing.T) {
		qc := newQC(t, cc, vars)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			p["icd_code"] = "A00"
			p["age_years"] = "30"
			p["weight"] = "900"
		}))
		require.Len(t, out, 1)
		p := out[0].Record.Data
		assert.Equal(t, "30", p.String("age"), "age filled from age_years")
		assert.False(t, p.Has("weight"), "out-of-bounds weight nulled out")
	})
}

func TestDeviceGating(t *testing.T) {
	t.Run("unknown device dropped", func(t *testing.T) {
		qc := newQC(t, qcCountry(), nil)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			p["deviceid"] = "ghost"
		}))
		assert.Empty(t, out)
	})

	t.Run("enketo substring admits", func(t *testing.T) {
		cc := qcCountry()
		cc.AllowEnketo = map[string][]string{"demo_case": {"enketo"}}
		qc := newQC(t, cc, nil)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			p["deviceid"] = "uuid:enketo-123"
		}))
		assert.Len(t, out, 1)
	})

	t.Run("no_deviceid form skips gating", func(t *testing.T) {
		cc := qcCountry()
		cc.NoDeviceID = []string{"demo_case"}
		qc := newQC(t, cc, nil)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			delete(p, "deviceid")
		}))
		assert.Len(t, out, 1)
	})

	t.Run("submission before device start dropped", func(t *testing.T) {
		qc := newQC(t, qcCountry(), nil)
		out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
			p["deviceid"] = "dev2"
			p["SubmissionDate"] = "2017-05-01T00:00:00Z"
			p["pt./visit_date"] = "2017-05-01"
		}))
		assert.Empty(t, out)
	})
}

func TestDateValidation(t *testing.T) {
	qc := newQC(t, qcCountry(), nil)
	out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
		p["pt./visit_date"] = "garbage"
	}))
	assert.Empty(t, out)
}

func TestListsFlattened(t *testing.T) {
	qc := newQC(t, qcCountry(), nil)
	out, _ := runQC(t, qc, qcItem("u1", func(p record.Payload) {
		p["symptoms"] = []any{"fever", "cough"}
	}))
	require.Len(t, out, 1)
	assert.Equal(t, "fever,cough", out[0].Record.Data["symptoms"])
}

func TestRequireCaseReport(t *testing.T) {
	cc := qcCountry()
	cc.RequireCaseReport = []string{"demo_case"}

	t.Run("non-reporting clinic dropped", func(t *testing.T) {
		qc := newQC(t, cc, nil)
		out, _ := runQC(t, qc, qcItem("u1", nil))
		assert.Empty(t, out)
	})

	t.Run("reporting clinic admitted", func(t *testing.T) {
		locs := []*location.Location{
			{ID: 1, Name: "Demo", Level: location.LevelCountry},
			{ID: 2, Name: "North", Level: location.LevelRegion, Parent: 1},
			{ID: 3, Name: "District A", Level: location.LevelDistrict, Parent: 2},
			{ID: 4, Name: "Clinic 1", Level: location.LevelClinic, Parent: 3,
				DeviceIDs: []string{"dev1"}, CaseReport: true},
		}
		tree, err := location.New(locs, []*location.Device{{DeviceID: "dev1"}})
		require.NoError(t, err)

		cat, err := rules.Load(nil, cc.MainForms())
		require.NoError(t, err)
		scheme, err := epiweek.Parse("international", nil)
		require.NoError(t, err)
		qc, err := NewQualityControl(cc, cat, tree, scheme, nil)
		require.NoError(t, err)

		out, _ := runQC(t, qc, qcItem("u1", nil))
		assert.Len(t, out, 1)
	})
}
