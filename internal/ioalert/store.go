package ioalert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/schema"
)

// pgxAlertStore reads coded records back from the data table. Touched
// rows re-enter the chunk and are rewritten by the persistence stage, so
// every column must round-trip.
type pgxAlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates the production AlertStore on a connection pool.
func NewAlertStore(pool *pgxpool.Pool) AlertStore {
	return &pgxAlertStore{pool: pool}
}

func (s *pgxAlertStore) CodedInWindow(
	ctx context.Context,
	variable string,
	clinic int,
	from, to time.Time,
) ([]*schema.Data, error) {
	// The variable id is embedded so the expression index on
	// variables->>'<id>' applies; ids come from the trusted catalogue.
	query := fmt.Sprintf(`
		SELECT uuid, type, type_name, date, epi_year, epi_week,
			submission_date, country, zone, region, district, clinic,
			clinic_type, case_type, tags, geolocation,
			variables, categories, links
		FROM data
		WHERE variables->>'%s' IS NOT NULL
			AND clinic = $1
			AND date BETWEEN $2 AND $3`,
		strings.ReplaceAll(variable, "'", "''"),
	)

	rows, err := s.pool.Query(ctx, query, clinic, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.Data
	for rows.Next() {
		var d schema.Data
		err := rows.Scan(
			&d.UUID, &d.Type, &d.TypeName, &d.Date, &d.EpiYear, &d.EpiWeek,
			&d.SubmissionDate, &d.Country, &d.Zone, &d.Region, &d.District,
			&d.Clinic, &d.ClinicType, &d.CaseType, &d.Tags, &d.Geolocation,
			&d.Variables, &d.Categories, &d.Links,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
