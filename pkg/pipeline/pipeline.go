// Package pipeline defines the contracts of the staged processing graph:
// the stage interface, the per-chunk accumulators shared between stages,
// and the retry policy values used for source and database I/O.
package pipeline

import (
	"context"

	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/schema"
)

// Item is one record flowing between stages.
type Item struct {
	Form   string
	Record record.RawRecord
}

// Stage processes a batch of items and emits the items for the next
// stage. Stages may also write into the chunk accumulators; the
// persistence writer flushes those at the chunk boundary. The orchestrator
// loops across records per stage, not across stages per record.
type Stage interface {
	Name() string
	Run(ctx context.Context, chunk *Chunk, items []Item) ([]Item, error)
}

// Chunk buffers everything a chunk produces until the flush at the commit
// point: raw rows per form and coded records keyed by (uuid, type). The
// alert stage mutates coded records in place before the flush.
type Chunk struct {
	raw      map[string]map[string]record.Payload
	rawForms []string

	coded      map[string]*schema.Data
	codedOrder []string

	disregarded      map[string]*schema.Data
	disregardedOrder []string

	alerts []*schema.Alert
}

// NewChunk returns empty accumulators.
func NewChunk() *Chunk {
	return &Chunk{
		raw:         make(map[string]map[string]record.Payload),
		coded:       make(map[string]*schema.Data),
		disregarded: make(map[string]*schema.Data),
	}
}

func codedKey(uuid, typ string) string {
	return uuid + "\x00" + typ
}

// AddRaw stages a raw row for the form's table. A later row with the same
// uuid replaces the earlier one.
func (c *Chunk) AddRaw(form, uuid string, p record.Payload) {
	rows, ok := c.raw[form]
	if !ok {
		rows = make(map[string]record.Payload)
		c.raw[form] = rows
		c.rawForms = append(c.rawForms, form)
	}
	rows[uuid] = p
}

// RawForms returns the forms with staged rows, in first-seen order.
func (c *Chunk) RawForms() []string {
	return c.rawForms
}

// RawRows returns the staged rows for one form.
func (c *Chunk) RawRows(form string) map[string]record.Payload {
	return c.raw[form]
}

// AddCoded stages a coded record, replacing any previous record with the
// same (uuid, type).
func (c *Chunk) AddCoded(d *schema.Data) {
	key := codedKey(d.UUID, d.Type)
	if _, seen := c.coded[key]; !seen {
		c.codedOrder = append(c.codedOrder, key)
	}
	c.coded[key] = d
}

// AddDisregarded stages a coded record for the disregarded table.
func (c *Chunk) AddDisregarded(d *schema.Data) {
	key := codedKey(d.UUID, d.Type)
	if _, seen := c.disregarded[key]; !seen {
		c.disregardedOrder = append(c.disregardedOrder, key)
	}
	c.disregarded[key] = d
}

// Coded returns staged coded records in insertion order.
func (c *Chunk) Coded() []*schema.Data {
	out := make([]*schema.Data, len(c.codedOrder))
	for i, key := range c.codedOrder {
		out[i] = c.coded[key]
	}
	return out
}

// Disregarded returns staged disregarded records in insertion order.
func (c *Chunk) Disregarded() []*schema.Data {
	out := make([]*schema.Data, len(c.disregardedOrder))
	for i, key := range c.disregardedOrder {
		out[i] = c.disregarded[key]
	}
	return out
}

// AddAlert stages an emitted alert for persistence and notification.
func (c *Chunk) AddAlert(a *schema.Alert) {
	c.alerts = append(c.alerts, a)
}

// Alerts returns the alerts emitted while processing the chunk.
func (c *Chunk) Alerts() []*schema.Alert {
	return c.alerts
}

// GetCoded looks up a staged coded record.
func (c *Chunk) GetCoded(uuid, typ string) (*schema.Data, bool) {
	d, ok := c.coded[codedKey(uuid, typ)]
	return d, ok
}

// Empty reports whether nothing was staged.
func (c *Chunk) Empty() bool {
	return len(c.raw) == 0 && len(c.coded) == 0 &&
		len(c.disregarded) == 0 && len(c.alerts) == 0
}
