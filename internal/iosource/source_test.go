package iosource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/rules"
)

func collect(items *[]pipeline.Item) Emit {
	return func(_ context.Context, item pipeline.Item) error {
		*items = append(*items, item)
		return nil
	}
}

func sourceCountry() *config.CountryConfig {
	return &config.CountryConfig{
		Name:   "demo",
		Tables: map[string]string{"demo_case": "demo_case"},
		DataTypes: []config.DataType{
			{Name: "case", Form: "demo_case", DateColumn: "pt./visit_date", Var: "tot_1"},
		},
		AlertIDLength: 6,
	}
}

func TestDecodeEnvelopes(t *testing.T) {
	input := strings.Join([]string{
		`{"form":"demo_case","uuid":"a1","data":{"icd_code":"A00"}}`,
		``,
		`{"form":"demo_case","uuid":"a2","data":{"icd_code":"B50"}}`,
	}, "\n")

	var items []pipeline.Item
	err := decodeEnvelopes(context.Background(), strings.NewReader(input), collect(&items))
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "demo_case", items[0].Form)
	assert.Equal(t, "a1", items[0].Record.UUID)
	assert.Equal(t, "A00", items[0].Record.Data["icd_code"])
	assert.Equal(t, "a2", items[1].Record.UUID)
}

func TestDecodeEnvelopesBadLine(t *testing.T) {
	var items []pipeline.Item
	err := decodeEnvelopes(context.Background(),
		strings.NewReader("not json"), collect(&items))
	assert.Error(t, err)
	assert.Empty(t, items)
}

func TestStoredItem(t *testing.T) {
	item, err := storedItem("demo_case", "u1",
		[]byte(`{"icd_code":"A09","pt./age":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, "demo_case", item.Form)
	assert.Equal(t, "u1", item.Record.UUID)
	assert.Equal(t, "A09", item.Record.Data["icd_code"])
}

func TestStoredItemBadPayload(t *testing.T) {
	_, err := storedItem("demo_case", "u1", []byte("not json"))
	assert.Error(t, err)
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	csv := "meta/instanceID,icd_code,pt./visit_date\n" +
		"u1,A00,2017-06-10\n" +
		"u2,B50,2017-06-11\n"
	require.NoError(t,
		os.WriteFile(filepath.Join(dir, "demo_case.csv"), []byte(csv), 0o644))

	src := NewCSVSource(dir, sourceCountry())

	var items []pipeline.Item
	err := src.Run(context.Background(), collect(&items))
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "demo_case", items[0].Form)
	assert.Equal(t, "u1", items[0].Record.UUID)
	assert.Equal(t, "A00", items[0].Record.Data["icd_code"])
	assert.Equal(t, "2017-06-11", items[1].Record.Data["pt./visit_date"])
}

func TestCSVSourceMissingFileSkipped(t *testing.T) {
	src := NewCSVSource(t.TempDir(), sourceCountry())

	var items []pipeline.Item
	err := src.Run(context.Background(), collect(&items))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFakeSource(t *testing.T) {
	cc := sourceCountry()
	v := &rules.Variable{
		ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
		DBColumn: "icd_code", Method: "match", Condition: "A00",
	}
	cat, err := rules.Load([]*rules.Variable{v}, cc.MainForms())
	require.NoError(t, err)

	src := NewFakeSource(cc, cat, []string{"dev1", "dev2"}, 0, 0, 5)

	var items []pipeline.Item
	require.NoError(t, src.Run(context.Background(), collect(&items)))

	require.Len(t, items, 5)
	seen := map[string]bool{}
	for _, it := range items {
		assert.Equal(t, "demo_case", it.Form)
		assert.NotEmpty(t, it.Record.UUID)
		assert.False(t, seen[it.Record.UUID], "uuids are unique")
		seen[it.Record.UUID] = true

		p := it.Record.Data
		assert.Equal(t, it.Record.UUID, p["meta/instanceID"])
		assert.Contains(t, p, "pt./visit_date")
		assert.Contains(t, p, "SubmissionDate")
		assert.Contains(t, []any{"dev1", "dev2"}, p["deviceid"])
		assert.Contains(t, p, "icd_code", "codeable value from the match index")
	}
}

func TestFakeSourceCancelled(t *testing.T) {
	cc := sourceCountry()
	cat, err := rules.Load([]*rules.Variable{{
		ID: "cmd_1", PK: 1, Type: "case", Form: "demo_case",
		DBColumn: "icd_code", Method: "match", Condition: "A00",
	}}, cc.MainForms())
	require.NoError(t, err)

	// A slow limiter so cancellation lands inside Wait.
	src := NewFakeSource(cc, cat, nil, time.Hour, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var items []pipeline.Item
	err = src.Run(ctx, collect(&items))
	assert.NoError(t, err, "cancellation is a clean stop")
}
