// Package coder applies the rule catalogue to a linked record: it resolves
// the location chain, stamps date and epi-week, runs the match-index sweep
// and the group evaluation, and produces coded records ready for
// persistence.
package coder

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/rules"
	"github.com/openepi/sentinel/pkg/schema"
)

// Linked is a coded-candidate record: one data-type, the raw payload of its
// main form, and the related rows the link resolver attached per link name.
type Linked struct {
	Type     string
	Raw      record.RawRecord
	LinkData map[string][]record.Payload
}

// Result carries the coded records of one submission. A submission with
// multiple_row expansion yields several; a failed condition gate yields
// none. EvalErrors lists rules skipped over evaluation failures.
type Result struct {
	Coded       []*schema.Data
	Disregarded []*schema.Data
	EvalErrors  []error
}

type dataType struct {
	cfg      config.DataType
	mode     location.Mode
	condCol  string
	condVal  string
	rowTmpls []string
}

// Coder is immutable after New and safe for concurrent use.
type Coder struct {
	country   *config.CountryConfig
	catalogue *rules.Catalogue
	tree      *location.Tree
	scheme    epiweek.Scheme
	strategy  epiweek.Strategy53
	links     *links.Table
	types     map[string]*dataType

	// linkByForm maps (type, source form) onto the link name whose rows
	// carry that form, so rules reading a linked form find their rows.
	linkByForm map[string]map[string]string
}

// New compiles the data-type descriptors. Location modes and condition
// gates are parsed once here so Code never fails on configuration.
func New(
	cc *config.CountryConfig,
	cat *rules.Catalogue,
	tree *location.Tree,
	scheme epiweek.Scheme,
	lt *links.Table,
) (*Coder, error) {
	c := &Coder{
		country:    cc,
		catalogue:  cat,
		tree:       tree,
		scheme:     scheme,
		strategy:   epiweek.Strategy53(cc.EpiWeek53Strategy),
		links:      lt,
		types:      make(map[string]*dataType, len(cc.DataTypes)),
		linkByForm: make(map[string]map[string]string),
	}
	if c.strategy == "" {
		c.strategy = epiweek.LeaveAsIs
	}

	for _, dt := range cc.DataTypes {
		mode, err := location.ParseMode(dt.Location)
		if err != nil {
			return nil, err
		}
		t := &dataType{cfg: dt, mode: mode}
		if dt.Condition != "" {
			col, val, ok := strings.Cut(dt.Condition, ":")
			if !ok {
				return nil, NewTypeError(dt.Name, "condition must be col:val")
			}
			t.condCol, t.condVal = col, val
		}
		if dt.MultipleRow != "" {
			for _, tmpl := range strings.Split(dt.MultipleRow, ",") {
				tmpl = strings.TrimSpace(tmpl)
				if !strings.Contains(tmpl, "$") {
					return nil, NewTypeError(dt.Name, "multiple_row template "+tmpl+" has no $")
				}
				t.rowTmpls = append(t.rowTmpls, tmpl)
			}
		}
		c.types[dt.Name] = t

		byForm := make(map[string]string)
		for _, def := range lt.ForType(dt.Name) {
			byForm[def.ToForm] = def.Name
		}
		c.linkByForm[dt.Name] = byForm
	}
	return c, nil
}

// Code runs the full coding of one linked record.
func (c *Coder) Code(l Linked) (*Result, error) {
	t, ok := c.types[l.Type]
	if !ok {
		return nil, NewTypeError(l.Type, "unknown data type")
	}

	res := &Result{}
	payload := l.Raw.Data

	if t.condCol != "" && payload.String(t.condCol) != t.condVal {
		return res, nil
	}

	for _, sub := range c.expand(t, l.Raw.UUID, payload) {
		c.codeOne(t, l, sub, res)
	}
	return res, nil
}

type subRecord struct {
	uuid    string
	payload record.Payload
}

// expand applies multiple_row templates: sub-record i copies each
// numbered column back onto its template name, so rules written against
// the template see the i-th row. Expansion stops at the first i where
// every substituted column is empty.
func (c *Coder) expand(t *dataType, uuid string, p record.Payload) []subRecord {
	if len(t.rowTmpls) == 0 {
		return []subRecord{{uuid: uuid, payload: p}}
	}

	var out []subRecord
	for i := 1; ; i++ {
		idx := strconv.Itoa(i)
		sub := p.Clone()
		empty := true
		for _, tmpl := range t.rowTmpls {
			col := strings.ReplaceAll(tmpl, "$", idx)
			if v, ok := p.Get(col); ok && record.Stringify(v) != "" {
				sub[tmpl] = v
				empty = false
			} else {
				delete(sub, tmpl)
			}
		}
		if empty {
			break
		}
		out = append(out, subRecord{uuid: uuid + ":" + idx, payload: sub})
	}
	return out
}

func (c *Coder) codeOne(t *dataType, l Linked, sub subRecord, res *Result) {
	chain, ok := c.tree.Resolve(t.mode, sub.payload)
	if !ok {
		return
	}

	date, err := sub.payload.Date(t.cfg.DateColumn)
	if err != nil {
		res.EvalErrors = append(res.EvalErrors, err)
		return
	}
	date = record.Day(date)
	year, week := c.scheme.Week(date)
	year, week = epiweek.Apply53(year, week, c.strategy)

	variables := datatypes.JSONMap{}
	categories := datatypes.JSONMap{}
	disregard := false
	individual := false

	// Plain equality rules on the main form go through the precomputed
	// index instead of the group walk.
	for col, byVal := range c.catalogue.MatchEntries(l.Type) {
		for _, entry := range byVal[sub.payload.String(col)] {
			variables[entry.ID] = 1
			for _, cat := range entry.Categories {
				categories[cat] = entry.ID
			}
		}
	}

	for _, g := range c.catalogue.Groups(l.Type) {
		winner, outcome := c.evalGroup(t, g, l, sub.payload, res)
		if winner == nil {
			continue
		}
		variables[winner.Var.ID] = outcome.Value
		for _, cat := range winner.Var.Category {
			categories[cat] = winner.Var.ID
		}
		if winner.Var.Disregard {
			disregard = true
		}
		if winner.Var.Alert {
			// Threshold and double rules get the alert markers from
			// the multi-record detector; the copied fields must be on
			// the record either way.
			c.copyAlertData(t.cfg.Form, sub.payload, variables)
		}
		if winner.Var.AlertKind() == rules.AlertIndividual {
			individual = true
			variables["alert"] = 1
			variables["alert_type"] = "individual"
			variables["alert_reason"] = winner.Var.ID
			variables["alert_id"] = links.Suffix(sub.uuid, c.country.AlertIDLength)
		}
	}

	variables[t.cfg.Var] = 1
	variables["data_entry"] = 1

	d := &schema.Data{
		UUID:           sub.uuid,
		Type:           l.Type,
		TypeName:       l.Type,
		Date:           date,
		EpiYear:        year,
		EpiWeek:        week,
		SubmissionDate: submissionDate(sub.payload),
		Country:        chain.Country,
		Zone:           chain.Zone,
		Region:         chain.Region,
		District:       chain.District,
		Clinic:         chain.Clinic,
		ClinicType:     chain.ClinicType,
		CaseType:       strings.Join(chain.CaseType, ","),
		Tags:           strings.Join(chain.Tags, ","),
		Geolocation:    chain.Geolocation,
		Variables:      variables,
		Categories:     categories,
		Links:          c.linkUUIDs(l),
	}

	if disregard && !individual {
		res.Disregarded = append(res.Disregarded, d)
	} else {
		res.Coded = append(res.Coded, d)
	}
}

// evalGroup picks the group's contributing rule. Without priority the
// first satisfied rule wins and the rest is skipped; with priority every
// rule runs and the smallest satisfied priority wins, first encountered
// on ties. Rules that fail to evaluate are skipped and reported.
func (c *Coder) evalGroup(
	t *dataType, g *rules.Group, l Linked, p record.Payload, res *Result,
) (*rules.Rule, rules.Outcome) {
	var winner *rules.Rule
	var winOut rules.Outcome

	for _, r := range g.Rules {
		out, err := c.evalRule(t, r, l, p)
		if err != nil {
			res.EvalErrors = append(res.EvalErrors, err)
			continue
		}
		if !out.Fired {
			continue
		}
		if !g.HasPriority {
			return r, out
		}
		if winner == nil || r.Var.Priority < winner.Var.Priority {
			winner = r
			winOut = out
		}
	}
	return winner, winOut
}

// evalRule routes the rule onto its source rows: the main form payload
// itself, or the linked rows of the form the rule reads.
func (c *Coder) evalRule(t *dataType, r *rules.Rule, l Linked, p record.Payload) (rules.Outcome, error) {
	if r.Var.Form == "" || r.Var.Form == t.cfg.Form {
		if r.Var.MultipleLink != "" {
			return r.EvalRows([]record.Payload{p}, p)
		}
		return r.Eval(p)
	}
	name, ok := c.linkByForm[l.Type][r.Var.Form]
	if !ok {
		return rules.Outcome{}, nil
	}
	return r.EvalRows(l.LinkData[name], p)
}

func (c *Coder) copyAlertData(form string, p record.Payload, variables datatypes.JSONMap) {
	for field, col := range c.country.AlertData[form] {
		if v := p.String(col); v != "" {
			variables["alert_"+field] = v
		}
	}
}

// linkUUIDs maps each attached link onto the uuids of its rows.
func (c *Coder) linkUUIDs(l Linked) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for _, def := range c.links.ForType(l.Type) {
		rows := l.LinkData[def.Name]
		if len(rows) == 0 {
			continue
		}
		field := def.UUID
		if field == "" {
			field = c.country.UUIDField(def.ToForm)
		}
		uuids := make([]any, 0, len(rows))
		for _, row := range rows {
			if u := row.String(field); u != "" {
				uuids = append(uuids, u)
			}
		}
		out[def.Name] = uuids
	}
	return out
}

func submissionDate(p record.Payload) (t0 time.Time) {
	for _, col := range []string{"SubmissionDate", "submission_date"} {
		if d, err := p.Date(col); err == nil {
			return d
		}
	}
	return t0
}
