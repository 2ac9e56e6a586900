package ioalert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/rules"
	"github.com/openepi/sentinel/pkg/schema"
)

type fakeAlertStore struct {
	rows []*schema.Data
}

func (s *fakeAlertStore) CodedInWindow(
	_ context.Context,
	variable string,
	clinic int,
	from, to time.Time,
) ([]*schema.Data, error) {
	var out []*schema.Data
	for _, r := range s.rows {
		if r.Clinic != clinic {
			continue
		}
		if _, ok := r.Variables[variable]; !ok {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func alertCountry() *config.CountryConfig {
	return &config.CountryConfig{
		Name:          "demo",
		Tables:        map[string]string{"demo_case": "demo_case"},
		AlertIDLength: 6,
	}
}

func newDetector(t *testing.T, alertType string, store AlertStore) (*Detector, *rules.Variable) {
	t.Helper()
	v := &rules.Variable{
		ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
		DBColumn: "icd_code", Method: "match", Condition: "A00",
		Alert: true, AlertType: alertType,
	}
	cat, err := rules.Load([]*rules.Variable{v}, map[string]string{"case": "demo_case"})
	require.NoError(t, err)
	scheme, err := epiweek.Parse("international", nil)
	require.NoError(t, err)
	return NewDetector(alertCountry(), cat, scheme, store), v
}

func codedRec(uuid string, clinic int, date time.Time, scheme epiweek.Scheme) *schema.Data {
	year, week := scheme.Week(date)
	return &schema.Data{
		UUID: uuid, Type: "case", Date: date,
		EpiYear: year, EpiWeek: week, Clinic: clinic,
		Variables: datatypes.JSONMap{"cmd_1": 1},
	}
}

func TestDailyThreshold(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)
	day := time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC)

	store := &fakeAlertStore{rows: []*schema.Data{
		codedRec("a", 1, day, scheme),
		codedRec("b", 1, day, scheme),
	}}
	det, _ := newDetector(t, "threshold:3,5", store)

	chunk := pipeline.NewChunk()
	chunk.AddCoded(codedRec("c", 1, day, scheme))

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)

	coded := map[string]*schema.Data{}
	for _, r := range chunk.Coded() {
		coded[r.UUID] = r
	}
	require.Len(t, coded, 3, "all bucket members restaged")

	rep := coded["a"]
	assert.Equal(t, 1, rep.Variables["alert"])
	assert.Equal(t, "threshold", rep.Variables["alert_type"])
	assert.Equal(t, 1, rep.Variables["alert_duration"])
	assert.Equal(t, "cmd_1", rep.Variables["alert_reason"])

	for _, uuid := range []string{"b", "c"} {
		sub := coded[uuid]
		assert.Equal(t, 1, sub.Variables["sub_alert"], uuid)
		assert.Equal(t, "a", sub.Variables["master_alert"], uuid)
	}

	alerts := chunk.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "a", alerts[0].UUID)
	assert.Equal(t, 1, alerts[0].Duration)
}

func TestDailyThresholdBelowLimit(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)
	day := time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC)

	det, _ := newDetector(t, "threshold:3,5", &fakeAlertStore{})
	chunk := pipeline.NewChunk()
	chunk.AddCoded(codedRec("c", 1, day, scheme))

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)
	assert.Empty(t, chunk.Alerts())
	assert.NotContains(t, chunk.Coded()[0].Variables, "alert")
}

func TestHospitalOverride(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)
	day := time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC)

	hospRec := func(uuid string) *schema.Data {
		r := codedRec(uuid, 1, day, scheme)
		r.ClinicType = "Hospital"
		return r
	}
	store := &fakeAlertStore{rows: []*schema.Data{hospRec("a"), hospRec("b")}}
	det, _ := newDetector(t, "threshold:3,5,10,20", store)

	chunk := pipeline.NewChunk()
	chunk.AddCoded(hospRec("c"))

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)
	assert.Empty(t, chunk.Alerts(), "hospital limit of 10 not reached by 3 records")
}

func TestDuplicateSuppression(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)
	day := time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC)

	rep := codedRec("a", 1, day, scheme)
	rep.Variables["alert"] = 1
	rep.Variables["alert_type"] = "threshold"
	rep.Variables["alert_duration"] = 1
	rep.Variables["alert_reason"] = "cmd_1"
	sub := codedRec("b", 1, day, scheme)
	sub.Variables["sub_alert"] = 1
	sub.Variables["master_alert"] = "a"

	store := &fakeAlertStore{rows: []*schema.Data{rep, sub}}
	det, _ := newDetector(t, "threshold:3,5", store)

	chunk := pipeline.NewChunk()
	chunk.AddCoded(codedRec("c", 1, day, scheme))

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)

	assert.Empty(t, chunk.Alerts(), "existing representative suppresses a new alert row")

	coded := map[string]*schema.Data{}
	for _, r := range chunk.Coded() {
		coded[r.UUID] = r
	}
	assert.NotContains(t, coded, "a", "untouched representative not rewritten")
	assert.NotContains(t, coded, "b", "already-attached subordinate untouched")
	assert.Equal(t, "a", coded["c"].Variables["master_alert"], "new subordinate attached")
}

func TestWeeklyThreshold(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)
	// Five records across one epi-week, never more than two per day.
	week23 := time.Date(2017, 6, 5, 0, 0, 0, 0, time.UTC)

	store := &fakeAlertStore{}
	for i := 0; i < 4; i++ {
		store.rows = append(store.rows,
			codedRec(fmt.Sprintf("w%d", i), 1, week23.AddDate(0, 0, i%3), scheme))
	}
	det, _ := newDetector(t, "threshold:3,5", store)

	chunk := pipeline.NewChunk()
	chunk.AddCoded(codedRec("new", 1, week23.AddDate(0, 0, 3), scheme))

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)

	require.Len(t, chunk.Alerts(), 1)
	assert.Equal(t, 7, chunk.Alerts()[0].Duration)
}

func TestDoubleDoubling(t *testing.T) {
	scheme, _ := epiweek.Parse("international", nil)

	// Weeks 1..3 of the 2017 epi-year at clinic 6 count 2, 4, 8.
	store := &fakeAlertStore{}
	n := 0
	addWeek := func(week, count int) {
		start := scheme.Start(2017, week)
		for i := 0; i < count; i++ {
			n++
			store.rows = append(store.rows,
				codedRec(fmt.Sprintf("d%02d", n), 6, start.AddDate(0, 0, i%7), scheme))
		}
	}
	addWeek(1, 2)
	addWeek(2, 4)
	addWeek(3, 7)

	det, _ := newDetector(t, "double", store)

	chunk := pipeline.NewChunk()
	newRec := codedRec("d99", 6, scheme.Start(2017, 3), scheme)
	chunk.AddCoded(newRec)

	_, err := det.Run(context.Background(), chunk, nil)
	require.NoError(t, err)

	require.Len(t, chunk.Alerts(), 1, "exactly one doubling alert")
	a := chunk.Alerts()[0]
	assert.Equal(t, "double", a.Type)
	assert.Equal(t, 7, a.Duration)
	assert.Equal(t, 6, a.Clinic)

	rep, ok := chunk.GetCoded(a.UUID, "case")
	require.True(t, ok)
	assert.Equal(t, "double", rep.Variables["alert_type"])
	assert.Equal(t, 7, rep.Variables["alert_duration"])
}
