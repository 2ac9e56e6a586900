package ioqc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
)

// VisitStore looks up prior visits sharing a natural key. The pgx
// implementation queries the raw form table; tests use an in-memory one.
type VisitStore interface {
	PriorVisits(
		ctx context.Context,
		table string,
		iv config.InitialVisit,
		identifiers map[string]string,
	) ([]record.RawRecord, error)
}

// InitialVisitControl demotes duplicate "new" visits to "return": of all
// records sharing the natural key, only the earliest keeps the new value.
type InitialVisitControl struct {
	country *config.CountryConfig
	store   VisitStore
}

// NewInitialVisitControl wires the stage.
func NewInitialVisitControl(cc *config.CountryConfig, store VisitStore) *InitialVisitControl {
	return &InitialVisitControl{country: cc, store: store}
}

// Name implements pipeline.Stage.
func (s *InitialVisitControl) Name() string { return "initial_visit_control" }

// Run passes unconfigured forms through untouched. For a configured form
// it pulls the prior visits with the same key, orders the union by visit
// date and demotes everything but the earliest. All touched records are
// restaged and emitted downstream.
func (s *InitialVisitControl) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	out := make([]pipeline.Item, 0, len(items))
	for _, it := range items {
		touched, err := s.control(ctx, chunk, it)
		if err != nil {
			return nil, err
		}
		out = append(out, touched...)
	}
	return out, nil
}

func (s *InitialVisitControl) control(
	ctx context.Context,
	chunk *pipeline.Chunk,
	it pipeline.Item,
) ([]pipeline.Item, error) {
	iv, ok := s.country.InitialVisitControl[it.Form]
	if !ok || !s.eligible(iv, it.Record.Data) {
		return []pipeline.Item{it}, nil
	}

	identifiers := make(map[string]string, len(iv.Identifiers))
	for _, col := range iv.Identifiers {
		identifiers[col] = it.Record.Data.String(col)
	}

	table := s.country.Tables[it.Form]
	prior, err := s.store.PriorVisits(ctx, table, iv, identifiers)
	if err != nil {
		return nil, err
	}

	union := make([]record.RawRecord, 0, len(prior)+1)
	for _, r := range prior {
		if r.UUID != it.Record.UUID {
			union = append(union, r)
		}
	}
	union = append(union, it.Record)
	if len(union) == 1 {
		return []pipeline.Item{it}, nil
	}

	sort.SliceStable(union, func(i, j int) bool {
		di, erri := union[i].Data.Date(iv.DateColumn)
		dj, errj := union[j].Data.Date(iv.DateColumn)
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return di.Before(dj)
	})

	items := make([]pipeline.Item, 0, len(union))
	for i, r := range union {
		r.Form = it.Form
		if i == 0 {
			r.Data[iv.VisitColumn] = iv.NewValue
		} else {
			r.Data[iv.VisitColumn] = iv.ReturnValue
		}
		chunk.AddRaw(table, r.UUID, r.Data)
		items = append(items, pipeline.Item{Form: it.Form, Record: r})
	}
	return items, nil
}

func (s *InitialVisitControl) eligible(iv config.InitialVisit, p record.Payload) bool {
	if p.String(iv.VisitColumn) != iv.NewValue {
		return false
	}
	if iv.ModuleColumn != "" && p.String(iv.ModuleColumn) != iv.Module {
		return false
	}
	return true
}

// pgxVisitStore queries prior visits from the raw form table's jsonb
// payload.
type pgxVisitStore struct {
	pool *pgxpool.Pool
}

// NewVisitStore creates the production VisitStore on a connection pool.
func NewVisitStore(pool *pgxpool.Pool) VisitStore {
	return &pgxVisitStore{pool: pool}
}

func (s *pgxVisitStore) PriorVisits(
	ctx context.Context,
	table string,
	iv config.InitialVisit,
	identifiers map[string]string,
) ([]record.RawRecord, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		args = append(args, col, val)
		conds = append(conds, fmt.Sprintf("data->>($%d::text) = $%d", len(args)-1, len(args)))
	}
	// Deterministic condition order keeps query plans cacheable.
	cols := make([]string, 0, len(identifiers))
	for col := range identifiers {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		add(col, identifiers[col])
	}
	add(iv.VisitColumn, iv.NewValue)
	if iv.ModuleColumn != "" {
		add(iv.ModuleColumn, iv.Module)
	}

	query := fmt.Sprintf(
		"SELECT uuid, data FROM %q WHERE %s",
		table, strings.Join(conds, " AND "),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.RawRecord
	for rows.Next() {
		var (
			uuid string
			data map[string]any
		)
		if err := rows.Scan(&uuid, &data); err != nil {
			return nil, err
		}
		out = append(out, record.RawRecord{UUID: uuid, Data: data})
	}
	return out, rows.Err()
}
