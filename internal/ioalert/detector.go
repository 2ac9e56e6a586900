// Package ioalert detects multi-record alerts: thresholds over daily and
// weekly buckets, and week-on-week doubling. Individual alerts are
// stamped inline by the coder; this stage only handles windows that span
// records, which requires reading back already-persisted coded data.
package ioalert

import (
	"context"
	"sort"
	"time"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/rules"
	"github.com/openepi/sentinel/pkg/schema"
)

// AlertStore reads back coded records for window scans. The pgx
// implementation lives in store.go.
type AlertStore interface {
	// CodedInWindow returns the coded records carrying the variable at
	// the clinic with date in [from, to].
	CodedInWindow(
		ctx context.Context,
		variable string,
		clinic int,
		from, to time.Time,
	) ([]*schema.Data, error)
}

// Detector is the multi-record alert stage.
type Detector struct {
	country *config.CountryConfig
	cat     *rules.Catalogue
	scheme  epiweek.Scheme
	store   AlertStore
}

// NewDetector wires the stage.
func NewDetector(
	cc *config.CountryConfig,
	cat *rules.Catalogue,
	scheme epiweek.Scheme,
	store AlertStore,
) *Detector {
	return &Detector{country: cc, cat: cat, scheme: scheme, store: store}
}

// Name implements pipeline.Stage.
func (d *Detector) Name() string { return "alert_detection" }

// Run scans windows around every coded record that carries an alerting
// variable. Touched records are restaged on the chunk so persistence
// rewrites them.
func (d *Detector) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	for _, v := range d.cat.AlertVariables() {
		kind, spec, err := rules.ParseAlertType(v.AlertType)
		if err != nil {
			return nil, err
		}

		perClinic := make(map[int][]*schema.Data)
		for _, rec := range chunk.Coded() {
			if _, ok := rec.Variables[v.ID]; ok {
				perClinic[rec.Clinic] = append(perClinic[rec.Clinic], rec)
			}
		}

		for clinic, newRecs := range perClinic {
			reach := 7 * 24 * time.Hour
			if kind == rules.AlertDouble {
				reach = 21 * 24 * time.Hour
			}
			from, to := dateSpan(newRecs, reach)

			existing, err := d.store.CodedInWindow(ctx, v.ID, clinic, from, to)
			if err != nil {
				return nil, err
			}
			union := mergeByUUID(newRecs, existing)

			switch kind {
			case rules.AlertThreshold:
				d.thresholdWindows(chunk, v, spec, union)
			case rules.AlertDouble:
				d.doubleWindows(chunk, v, union)
			}
		}
	}
	return items, nil
}

// thresholdWindows checks daily and weekly buckets against the limits,
// with hospital overrides when the clinic type warrants them.
func (d *Detector) thresholdWindows(
	chunk *pipeline.Chunk,
	v *rules.Variable,
	spec *rules.ThresholdSpec,
	recs []*schema.Data,
) {
	daily := make(map[time.Time][]*schema.Data)
	weekly := make(map[time.Time][]*schema.Data)
	for _, r := range recs {
		day := r.Date.Truncate(24 * time.Hour)
		daily[day] = append(daily[day], r)
		week := d.scheme.Start(r.EpiYear, r.EpiWeek)
		weekly[week] = append(weekly[week], r)
	}

	for _, bucket := range daily {
		limit := spec.Daily
		if isHospital(bucket) && spec.HospDaily > 0 {
			limit = spec.HospDaily
		}
		if limit > 0 && len(bucket) >= limit {
			d.mark(chunk, v, bucket, 1)
		}
	}
	for _, bucket := range weekly {
		limit := spec.Weekly
		if isHospital(bucket) && spec.HospWeekly > 0 {
			limit = spec.HospWeekly
		}
		if limit > 0 && len(bucket) >= limit {
			d.mark(chunk, v, bucket, 7)
		}
	}
}

// doubleWindows triggers on week W when its count at least doubled a
// week that itself at least doubled the week before, and both earlier
// weeks saw more than one case.
func (d *Detector) doubleWindows(
	chunk *pipeline.Chunk,
	v *rules.Variable,
	recs []*schema.Data,
) {
	weekly := make(map[time.Time][]*schema.Data)
	for _, r := range recs {
		week := d.scheme.Start(r.EpiYear, r.EpiWeek)
		weekly[week] = append(weekly[week], r)
	}

	for week, bucket := range weekly {
		prev1 := len(weekly[week.AddDate(0, 0, -7)])
		prev2 := len(weekly[week.AddDate(0, 0, -14)])
		if prev1 > 1 && prev2 > 1 &&
			len(bucket) >= 2*prev1 && prev1 >= 2*prev2 {
			d.mark(chunk, v, bucket, 7)
		}
	}
}

// mark elects the representative of a triggered bucket and stamps every
// member. If an earlier run already marked a representative for this
// reason it stays representative and only new subordinates are attached.
func (d *Detector) mark(
	chunk *pipeline.Chunk,
	v *rules.Variable,
	bucket []*schema.Data,
	duration int,
) {
	sort.SliceStable(bucket, func(i, j int) bool {
		if !bucket[i].Date.Equal(bucket[j].Date) {
			return bucket[i].Date.Before(bucket[j].Date)
		}
		return bucket[i].UUID < bucket[j].UUID
	})

	rep := bucket[0]
	repIsNew := true
	for _, r := range bucket {
		if hasValue(r.Variables, "alert") &&
			stringValue(r.Variables, "alert_reason") == v.ID {
			rep = r
			repIsNew = false
			break
		}
	}

	kind := "threshold"
	if v.AlertKind() == rules.AlertDouble {
		kind = "double"
	}

	if repIsNew {
		rep.Variables["alert"] = 1
		rep.Variables["alert_type"] = kind
		rep.Variables["alert_duration"] = duration
		rep.Variables["alert_reason"] = v.ID
		rep.Variables["alert_id"] = links.Suffix(rep.UUID, d.country.AlertIDLength)
		chunk.AddCoded(rep)

		chunk.AddAlert(&schema.Alert{
			AlertID:  links.Suffix(rep.UUID, d.country.AlertIDLength),
			UUID:     rep.UUID,
			Reason:   v.ID,
			Type:     kind,
			Date:     rep.Date,
			Clinic:   rep.Clinic,
			Duration: duration,
		})
	}

	for _, r := range bucket {
		if r.UUID == rep.UUID {
			continue
		}
		if stringValue(r.Variables, "master_alert") == rep.UUID {
			continue
		}
		r.Variables["sub_alert"] = 1
		r.Variables["master_alert"] = rep.UUID
		chunk.AddCoded(r)
	}
}

// dateSpan is the fetch window: the records' date range widened by reach
// on both sides.
func dateSpan(recs []*schema.Data, reach time.Duration) (time.Time, time.Time) {
	min, max := recs[0].Date, recs[0].Date
	for _, r := range recs[1:] {
		if r.Date.Before(min) {
			min = r.Date
		}
		if r.Date.After(max) {
			max = r.Date
		}
	}
	return min.Add(-reach), max.Add(reach)
}

// mergeByUUID unions chunk records with persisted ones; the chunk version
// wins because it is newer.
func mergeByUUID(chunkRecs, existing []*schema.Data) []*schema.Data {
	seen := make(map[string]bool, len(chunkRecs))
	out := make([]*schema.Data, 0, len(chunkRecs)+len(existing))
	for _, r := range chunkRecs {
		seen[r.UUID] = true
		out = append(out, r)
	}
	for _, r := range existing {
		if !seen[r.UUID] {
			out = append(out, r)
		}
	}
	return out
}

func isHospital(bucket []*schema.Data) bool {
	return len(bucket) > 0 && bucket[0].ClinicType == "Hospital"
}

func hasValue(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
