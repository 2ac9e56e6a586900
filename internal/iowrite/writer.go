// Package iowrite persists a chunk: per table it deletes the keys about
// to be rewritten, then runs batched parameterized INSERTs. Deterministic
// keys make the whole flush idempotent under replay, so no cross-table
// transaction is needed.
package iowrite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/schema"

	"github.com/openepi/sentinel/internal/iodb"
)

// PostgreSQL allows 65535 parameters per query; the row budget divides
// that by the column count of the widest insert.
const maxParams = 65535

// Writer is the persistence stage, the commit point of a chunk.
type Writer struct {
	pool      *pgxpool.Pool
	batchSize int
	retry     pipeline.RetryPolicy
}

// NewWriter wires the stage. batchSize caps rows per INSERT before the
// parameter limit does.
func NewWriter(pool *pgxpool.Pool, batchSize int) *Writer {
	return &Writer{
		pool:      pool,
		batchSize: batchSize,
		retry:     pipeline.DefaultRetry(),
	}
}

// Name implements pipeline.Stage.
func (w *Writer) Name() string { return "persistence" }

// Run flushes every accumulator of the chunk. Transient database errors
// retry with backoff; fatal ones abort the chunk.
func (w *Writer) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	for _, form := range chunk.RawForms() {
		if err := w.flushRaw(ctx, form, chunk.RawRows(form)); err != nil {
			return nil, err
		}
	}
	if err := w.flushCoded(ctx, "data", chunk.Coded()); err != nil {
		return nil, err
	}
	if err := w.flushCoded(ctx, "disregarded_data", chunk.Disregarded()); err != nil {
		return nil, err
	}
	if err := w.flushAlerts(ctx, chunk.Alerts()); err != nil {
		return nil, err
	}
	return items, nil
}

// flushRaw rewrites raw form rows keyed by uuid.
func (w *Writer) flushRaw(
	ctx context.Context,
	table string,
	rows map[string]record.Payload,
) error {
	if len(rows) == 0 {
		return nil
	}

	uuids := make([]string, 0, len(rows))
	for uuid := range rows {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)

	err := w.exec(ctx, fmt.Sprintf("DELETE FROM %q WHERE uuid = ANY($1)", table), uuids)
	if err != nil {
		return err
	}

	cols := []string{"uuid", "data"}
	for _, batch := range batches(len(uuids), w.rowBudget(len(cols))) {
		var args []any
		for _, uuid := range uuids[batch.start:batch.end] {
			args = append(args, uuid, rows[uuid])
		}
		query := insertQuery(table, cols, batch.end-batch.start)
		if err := w.exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

var codedColumns = []string{
	"uuid", "type", "type_name", "date", "epi_year", "epi_week",
	"submission_date", "country", "zone", "region", "district", "clinic",
	"clinic_type", "case_type", "tags", "geolocation",
	"variables", "categories", "links",
}

// flushCoded rewrites coded rows keyed by (uuid, type). Deletes are
// grouped by the type discriminator.
func (w *Writer) flushCoded(
	ctx context.Context,
	table string,
	recs []*schema.Data,
) error {
	if len(recs) == 0 {
		return nil
	}

	byType := make(map[string][]string)
	for _, d := range recs {
		byType[d.Type] = append(byType[d.Type], d.UUID)
	}
	types := make([]string, 0, len(byType))
	for typ := range byType {
		types = append(types, typ)
	}
	sort.Strings(types)

	for _, typ := range types {
		query := fmt.Sprintf("DELETE FROM %q WHERE uuid = ANY($1) AND type = $2", table)
		if err := w.exec(ctx, query, byType[typ], typ); err != nil {
			return err
		}
	}

	for _, batch := range batches(len(recs), w.rowBudget(len(codedColumns))) {
		var args []any
		for _, d := range recs[batch.start:batch.end] {
			args = append(args,
				d.UUID, d.Type, d.TypeName, d.Date, d.EpiYear, d.EpiWeek,
				d.SubmissionDate, d.Country, d.Zone, d.Region, d.District,
				d.Clinic, d.ClinicType, d.CaseType, d.Tags, d.Geolocation,
				d.Variables, d.Categories, d.Links,
			)
		}
		query := insertQuery(table, codedColumns, batch.end-batch.start)
		if err := w.exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

var alertColumns = []string{
	"alert_id", "uuid", "reason", "type", "date", "clinic", "duration",
	"details", "sent_at",
}

func (w *Writer) flushAlerts(ctx context.Context, alerts []*schema.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	for _, batch := range batches(len(alerts), w.rowBudget(len(alertColumns))) {
		var args []any
		for _, a := range alerts[batch.start:batch.end] {
			args = append(args,
				a.AlertID, a.UUID, a.Reason, a.Type, a.Date, a.Clinic,
				a.Duration, a.Details, a.SentAt,
			)
		}
		query := insertQuery("alerts", alertColumns, batch.end-batch.start)
		if err := w.exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// WriteStepMonitoring records one stage timing row. Failures only warn;
// monitoring must not fail a chunk.
func (w *Writer) WriteStepMonitoring(ctx context.Context, m *schema.StepMonitoring) error {
	query := insertQuery("step_monitoring",
		[]string{"step", "start", "end", "duration", "n"}, 1)
	return w.exec(ctx, query, m.Step, m.Start, m.End, m.Duration, m.N)
}

func (w *Writer) exec(ctx context.Context, query string, args ...any) error {
	return w.retry.Do(ctx, func() error {
		if _, err := w.pool.Exec(ctx, query, args...); err != nil {
			return iodb.Classify(err)
		}
		return nil
	})
}

// rowBudget caps rows per statement by both the configured batch size
// and the parameter limit.
func (w *Writer) rowBudget(cols int) int {
	budget := maxParams / cols
	if w.batchSize > 0 && w.batchSize < budget {
		budget = w.batchSize
	}
	return budget
}

type span struct {
	start, end int
}

func batches(n, size int) []span {
	var out []span
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{start: start, end: end})
	}
	return out
}

// insertQuery builds the parameterized multi-row INSERT:
// ($1, $2, ...), ($k+1, ...), ...
func insertQuery(table string, cols []string, nRows int) string {
	valueStrings := make([]string, 0, nRows)
	argIdx := 1
	for i := 0; i < nRows; i++ {
		ph := make([]string, len(cols))
		for j := range cols {
			ph[j] = fmt.Sprintf("$%d", argIdx)
			argIdx++
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ", ")+")")
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES %s",
		table, strings.Join(quoted, ", "), strings.Join(valueStrings, ", "),
	)
}
