// Package ioqc implements the admission stages of the pipeline: row-level
// quality control and initial-visit demotion. Both are pipeline.Stage
// implementations; admitted records are staged for the raw form tables.
package ioqc

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/rules"
)

// QualityControl drops or corrects records before they reach coding.
type QualityControl struct {
	country     *config.CountryConfig
	tree        *location.Tree
	scheme      epiweek.Scheme
	importRules map[string][]*rules.Rule
	exclusions  map[string]map[string]bool
	dateCols    map[string][]string
	qcForms     map[string]bool
	noDevice    map[string]bool
	caseReport  map[string]bool
	enketo      map[string][]string
	onlyAfter   map[string]time.Time

	// randFloat is swappable so fraction sampling is testable.
	randFloat func() float64
}

// NewQualityControl wires the stage from the loaded configuration. Import
// rules come from the catalogue's "import" type, grouped by form.
func NewQualityControl(
	cc *config.CountryConfig,
	cat *rules.Catalogue,
	tree *location.Tree,
	scheme epiweek.Scheme,
	exclusions map[string]map[string]bool,
) (*QualityControl, error) {
	qc := &QualityControl{
		country:     cc,
		tree:        tree,
		scheme:      scheme,
		importRules: make(map[string][]*rules.Rule),
		exclusions:  exclusions,
		dateCols:    make(map[string][]string),
		qcForms:     make(map[string]bool),
		noDevice:    make(map[string]bool),
		caseReport:  make(map[string]bool),
		enketo:      cc.AllowEnketo,
		onlyAfter:   make(map[string]time.Time),
		randFloat:   rand.Float64,
	}

	for _, g := range cat.Groups("import") {
		for _, r := range g.Rules {
			qc.importRules[r.Var.Form] = append(qc.importRules[r.Var.Form], r)
		}
	}
	for _, form := range cc.QualityControl {
		qc.qcForms[form] = true
	}
	for _, form := range cc.NoDeviceID {
		qc.noDevice[form] = true
	}
	for _, form := range cc.RequireCaseReport {
		qc.caseReport[form] = true
	}
	for form, s := range cc.OnlyImportAfter {
		d, err := record.ParseDate(s)
		if err != nil {
			return nil, err
		}
		qc.onlyAfter[form] = d
	}
	for _, dt := range cc.DataTypes {
		qc.dateCols[dt.Form] = append(qc.dateCols[dt.Form], dt.DateColumn)
	}
	return qc, nil
}

// Name implements pipeline.Stage.
func (qc *QualityControl) Name() string { return "quality_control" }

// Run admits, corrects or drops each record, and stages admitted rows for
// the raw form tables.
func (qc *QualityControl) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	out := make([]pipeline.Item, 0, len(items))
	for _, it := range items {
		admitted, ok := qc.admit(it)
		if !ok {
			continue
		}
		table, known := qc.country.Tables[admitted.Form]
		if !known {
			slog.Debug("dropping record of unknown form", "form", admitted.Form)
			continue
		}
		chunk.AddRaw(table, admitted.Record.UUID, admitted.Record.Data)
		out = append(out, admitted)
	}
	return out, nil
}

func (qc *QualityControl) admit(it pipeline.Item) (pipeline.Item, bool) {
	p := it.Record.Data
	form := it.Form

	uuid := it.Record.UUID
	if uuid == "" {
		uuid = p.String(qc.country.UUIDField(form))
	}
	if uuid == "" {
		return it, false
	}
	it.Record.UUID = uuid

	if f, ok := qc.country.Fraction[form]; ok && qc.randFloat() > f {
		return it, false
	}

	submitted, haveSubmitted := qc.submissionDate(p)
	if after, ok := qc.onlyAfter[form]; ok && haveSubmitted && submitted.Before(after) {
		return it, false
	}

	if qc.exclusions[form][uuid] {
		return it, false
	}

	if qc.qcForms[form] && !qc.applyImportRules(form, p) {
		return it, false
	}

	if !qc.noDevice[form] {
		if !qc.deviceAdmitted(form, p, submitted, haveSubmitted) {
			return it, false
		}
	}

	if qc.caseReport[form] && !qc.fromCaseReportingClinic(p) {
		return it, false
	}

	if !qc.datesValid(form, p) {
		return it, false
	}

	p.FlattenLists()
	return it, true
}

// applyImportRules runs the form's import rules. A rule that does not
// fire triggers its corrective action: discard the record, replace the
// column from another, or null the column out.
func (qc *QualityControl) applyImportRules(form string, p record.Payload) bool {
	for _, r := range qc.importRules[form] {
		outcome, err := r.Eval(p)
		if err != nil {
			slog.Warn("import rule failed to evaluate", "rule", r.Var.ID, "error", err)
			continue
		}
		if outcome.Fired {
			continue
		}
		col := firstColumn(r.Var.DBColumn)
		action := ""
		if len(r.Var.Category) > 0 {
			action = r.Var.Category[0]
		}
		if action == "discard" {
			return false
		}
		if src, ok := strings.CutPrefix(action, "replace:"); ok {
			if v, found := p.Get(src); found {
				p[col] = v
			} else {
				delete(p, col)
			}
			continue
		}
		delete(p, col)
	}
	return true
}

func (qc *QualityControl) deviceAdmitted(
	form string, p record.Payload, submitted time.Time, haveSubmitted bool,
) bool {
	id := p.String("deviceid")
	if id == "" {
		return false
	}
	if !qc.tree.KnownDevice(id) {
		for _, sub := range qc.enketo[form] {
			if sub != "" && strings.Contains(id, sub) {
				return true
			}
		}
		return false
	}
	if dev, ok := qc.tree.Device(id); ok && !dev.StartDate.IsZero() &&
		haveSubmitted && submitted.Before(dev.StartDate) {
		return false
	}
	return true
}

// fromCaseReportingClinic restricts a form to clinics flagged as
// case-reporting. Enketo submissions have no registered device and pass;
// the location resolver drops them later if their clinic is unknown.
func (qc *QualityControl) fromCaseReportingClinic(p record.Payload) bool {
	id := p.String("deviceid")
	if id == "" || !qc.tree.KnownDevice(id) {
		return true
	}
	chain, ok := qc.tree.ResolveDevice(id)
	if !ok {
		return false
	}
	return chain.CaseReport
}

// datesValid checks that every date column a data-type reads from this
// form parses and yields an epi-week. Each column is checked once.
func (qc *QualityControl) datesValid(form string, p record.Payload) bool {
	seen := make(map[string]bool, len(qc.dateCols[form]))
	for _, col := range qc.dateCols[form] {
		if seen[col] {
			continue
		}
		seen[col] = true
		d, err := p.Date(col)
		if err != nil {
			return false
		}
		if _, week := qc.scheme.Week(d); week < 1 {
			return false
		}
	}
	return true
}

func (qc *QualityControl) submissionDate(p record.Payload) (time.Time, bool) {
	for _, col := range []string{"SubmissionDate", "submission_date"} {
		if d, err := p.Date(col); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func firstColumn(dbColumn string) string {
	col, _, _ := strings.Cut(dbColumn, ";")
	col, _, _ = strings.Cut(col, ",")
	return strings.TrimSpace(col)
}
