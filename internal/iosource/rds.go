package iosource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
)

// RDSSource replays the raw form tables of a previous deployment. Each
// per-form table in the persistent database is streamed in insertion
// order, so a fresh store can be rebuilt from what an older one already
// ingested.
type RDSSource struct {
	pool    *pgxpool.Pool
	country *config.CountryConfig
}

// NewRDSSource creates the replay source for the initial import.
func NewRDSSource(pool *pgxpool.Pool, cc *config.CountryConfig) *RDSSource {
	return &RDSSource{pool: pool, country: cc}
}

func (s *RDSSource) Name() string { return "rds" }

// Run reads the forms in name order, one full table at a time.
func (s *RDSSource) Run(ctx context.Context, emit Emit) error {
	forms := make([]string, 0, len(s.country.Tables))
	for form := range s.country.Tables {
		forms = append(forms, form)
	}
	sort.Strings(forms)

	for _, form := range forms {
		if err := s.readTable(ctx, form, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *RDSSource) readTable(ctx context.Context, form string, emit Emit) error {
	table := s.country.Tables[form]
	query := fmt.Sprintf("SELECT uuid, data FROM %q ORDER BY id", table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return pipeline.NewSourceError(s.Name(), err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			uuid string
			data []byte
		)
		if err := rows.Scan(&uuid, &data); err != nil {
			return pipeline.NewSourceError(s.Name(), err)
		}
		item, err := storedItem(form, uuid, data)
		if err != nil {
			return pipeline.NewSourceError(s.Name(), err)
		}
		if err := emit(ctx, item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return pipeline.NewSourceError(s.Name(), err)
	}
	return nil
}

// storedItem rebuilds an envelope from a raw table row.
func storedItem(form, uuid string, data []byte) (pipeline.Item, error) {
	var p record.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return pipeline.Item{}, err
	}
	rec := record.RawRecord{Form: form, UUID: uuid, Data: p}
	return pipeline.Item{Form: form, Record: rec}, nil
}
