package iolink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/record"
)

// pgxLinkStore matches rows against the jsonb payloads of the raw form
// tables.
type pgxLinkStore struct {
	pool *pgxpool.Pool
}

// NewLinkStore creates the production LinkStore on a connection pool.
func NewLinkStore(pool *pgxpool.Pool) LinkStore {
	return &pgxLinkStore{pool: pool}
}

func (s *pgxLinkStore) MatchRows(
	ctx context.Context,
	table string,
	conds []Cond,
) ([]record.Payload, error) {
	if table == "" || len(conds) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, c := range conds {
		switch c.Op {
		case OpLowerEqual:
			args = append(args, c.Column, normalize(c.Value))
			where = append(where, fmt.Sprintf(
				"lower(replace(data->>($%d::text), '-', '_')) = $%d",
				len(args)-1, len(args)))
		case OpSuffixEqual:
			args = append(args, c.Column, c.Len, c.Value)
			where = append(where, fmt.Sprintf(
				"right(data->>($%d::text), $%d) = $%d",
				len(args)-2, len(args)-1, len(args)))
		default:
			args = append(args, c.Column, c.Value)
			where = append(where, fmt.Sprintf(
				"data->>($%d::text) = $%d", len(args)-1, len(args)))
		}
	}

	query := fmt.Sprintf(
		"SELECT data FROM %q WHERE %s",
		table, strings.Join(where, " AND "),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Payload
	for rows.Next() {
		var data map[string]any
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}
