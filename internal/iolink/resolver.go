// Package iolink resolves declarative links between forms against the raw
// form tables and drives the coding stage. The matching and ordering
// semantics live in pkg/links; this package owns the SQL.
package iolink

import (
	"context"

	"github.com/openepi/sentinel/pkg/coder"
	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/record"
)

// CondOp selects the SQL operator of one link condition.
type CondOp int

const (
	// OpEqual compares the payload column to the value.
	OpEqual CondOp = iota
	// OpLowerEqual compares case-insensitively with "-" folded to "_".
	OpLowerEqual
	// OpSuffixEqual compares the last Len characters of the payload
	// column to the value.
	OpSuffixEqual
)

// Cond is one condition on a form table's jsonb payload.
type Cond struct {
	Column string
	Op     CondOp
	Value  string
	Len    int
}

// LinkStore fetches payloads from a raw form table. The pgx
// implementation lives in store.go; tests use an in-memory one.
type LinkStore interface {
	MatchRows(ctx context.Context, table string, conds []Cond) ([]record.Payload, error)
}

// Resolver joins records with their related forms.
type Resolver struct {
	country *config.CountryConfig
	table   *links.Table
	store   LinkStore
}

// NewResolver wires the resolver.
func NewResolver(cc *config.CountryConfig, lt *links.Table, store LinkStore) *Resolver {
	return &Resolver{country: cc, table: lt, store: store}
}

// ToLinks attaches related rows for every link triggered by the record's
// data-type: rows of the to-form matching the from-record's columns,
// filtered by the to-condition and ordered by the order-by clause.
func (r *Resolver) ToLinks(
	ctx context.Context,
	typ string,
	raw record.RawRecord,
) (map[string][]record.Payload, error) {
	defs := r.table.ForType(typ)
	if len(defs) == 0 {
		return nil, nil
	}

	out := make(map[string][]record.Payload, len(defs))
	for _, def := range defs {
		conds := make([]Cond, 0, len(def.FromColumns))
		usable := true
		for i, fromCol := range def.FromColumns {
			fromVal := raw.Data.String(fromCol)
			if fromCol == r.country.UUIDField(def.FromForm) && fromVal == "" {
				fromVal = raw.UUID
			}
			if fromVal == "" {
				usable = false
				break
			}
			conds = append(conds, toCond(def.Methods[i], def.ToColumns[i], fromVal, r.country.AlertIDLength))
		}
		if !usable {
			continue
		}

		rows, err := r.store.MatchRows(ctx, r.country.Tables[def.ToForm], conds)
		if err != nil {
			return nil, err
		}
		rows = def.FilterToCondition(rows)
		def.Sort(rows)
		if len(rows) > 0 {
			out[def.Name] = rows
		}
	}
	return out, nil
}

// toCond maps a link method onto its SQL condition. The alert_match
// suffix is computed here so the query is a plain equality.
func toCond(method, toCol, fromVal string, alertIDLen int) Cond {
	switch method {
	case links.MethodLowerMatch:
		return Cond{Column: toCol, Op: OpLowerEqual, Value: fromVal}
	case links.MethodAlertMatch:
		return Cond{Column: toCol, Op: OpEqual, Value: links.Suffix(fromVal, alertIDLen)}
	default:
		return Cond{Column: toCol, Op: OpEqual, Value: fromVal}
	}
}

// FromLinks rehydrates coded candidates when a record arrives on a
// to-form: for every link whose additional form is this record's form,
// the matching from-form rows are fetched and each becomes a candidate
// with its links fully re-resolved.
func (r *Resolver) FromLinks(
	ctx context.Context,
	form string,
	raw record.RawRecord,
) ([]coder.Linked, error) {
	var out []coder.Linked
	for _, def := range r.table.ForToForm(form) {
		if def.ToCondition != "" &&
			len(def.FilterToCondition([]record.Payload{raw.Data})) == 0 {
			continue
		}

		conds := make([]Cond, 0, len(def.FromColumns))
		usable := true
		for i, toCol := range def.ToColumns {
			toVal := raw.Data.String(toCol)
			if toVal == "" {
				usable = false
				break
			}
			conds = append(conds, fromCond(def.Methods[i], def.FromColumns[i], toVal, r.country.AlertIDLength))
		}
		if !usable {
			continue
		}

		rows, err := r.store.MatchRows(ctx, r.country.Tables[def.FromForm], conds)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			from := record.RawRecord{
				Form: def.FromForm,
				UUID: row.String(r.country.UUIDField(def.FromForm)),
				Data: row,
			}
			if from.UUID == "" {
				continue
			}
			linkData, err := r.ToLinks(ctx, def.Type, from)
			if err != nil {
				return nil, err
			}
			out = append(out, coder.Linked{Type: def.Type, Raw: from, LinkData: linkData})
		}
	}
	return out, nil
}

// fromCond reverses a link method for the from-form side: alert_match
// means the to-value equals the suffix of the from-column.
func fromCond(method, fromCol, toVal string, alertIDLen int) Cond {
	switch method {
	case links.MethodLowerMatch:
		return Cond{Column: fromCol, Op: OpLowerEqual, Value: toVal}
	case links.MethodAlertMatch:
		return Cond{Column: fromCol, Op: OpSuffixEqual, Value: toVal, Len: alertIDLen}
	default:
		return Cond{Column: fromCol, Op: OpEqual, Value: toVal}
	}
}
