package iowrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertQuery(t *testing.T) {
	q := insertQuery("demo_case", []string{"uuid", "data"}, 2)
	assert.Equal(t,
		`INSERT INTO "demo_case" ("uuid", "data") VALUES ($1, $2), ($3, $4)`,
		q)
}

func TestBatches(t *testing.T) {
	spans := batches(10, 4)
	require.Len(t, spans, 3)
	assert.Equal(t, span{0, 4}, spans[0])
	assert.Equal(t, span{4, 8}, spans[1])
	assert.Equal(t, span{8, 10}, spans[2])

	assert.Len(t, batches(4, 4), 1)
	assert.Empty(t, batches(0, 4))
}

func TestRowBudget(t *testing.T) {
	w := NewWriter(nil, 5000)

	// The parameter limit wins for wide rows.
	assert.Equal(t, maxParams/len(codedColumns), w.rowBudget(len(codedColumns)))

	// The configured batch size wins for narrow rows.
	w.batchSize = 1000
	assert.Equal(t, 1000, w.rowBudget(2))
}
