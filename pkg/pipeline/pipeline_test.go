package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/schema"
)

func TestChunkRaw(t *testing.T) {
	c := NewChunk()
	c.AddRaw("demo_case", "u1", record.Payload{"a": "1"})
	c.AddRaw("demo_case", "u2", record.Payload{"a": "2"})
	c.AddRaw("demo_register", "u3", record.Payload{"b": "3"})
	c.AddRaw("demo_case", "u1", record.Payload{"a": "9"})

	assert.Equal(t, []string{"demo_case", "demo_register"}, c.RawForms())
	rows := c.RawRows("demo_case")
	require.Len(t, rows, 2)
	assert.Equal(t, "9", rows["u1"]["a"])
}

func TestChunkCodedReplace(t *testing.T) {
	c := NewChunk()
	c.AddCoded(&schema.Data{UUID: "u1", Type: "case"})
	c.AddCoded(&schema.Data{UUID: "u1", Type: "register"})
	c.AddCoded(&schema.Data{UUID: "u1", Type: "case", Clinic: 4})

	coded := c.Coded()
	require.Len(t, coded, 2)
	assert.Equal(t, 4, coded[0].Clinic)
	assert.Equal(t, "register", coded[1].Type)

	d, ok := c.GetCoded("u1", "case")
	require.True(t, ok)
	assert.Equal(t, 4, d.Clinic)
	_, ok = c.GetCoded("u2", "case")
	assert.False(t, ok)
}

func TestChunkEmpty(t *testing.T) {
	c := NewChunk()
	assert.True(t, c.Empty())
	c.AddDisregarded(&schema.Data{UUID: "u1", Type: "case"})
	assert.False(t, c.Empty())
	assert.Len(t, c.Disregarded(), 1)
}

func TestRetryTransient(t *testing.T) {
	p := RetryPolicy{Base: time.Millisecond, Cap: 4 * time.Millisecond, MaxTries: 5}

	var calls int
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewTransientDBError(errors.New("connection reset"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryFatalStops(t *testing.T) {
	p := RetryPolicy{Base: time.Millisecond, Cap: time.Millisecond, MaxTries: 5}

	var calls int
	err := p.Do(context.Background(), func() error {
		calls++
		return NewFatalDBError(errors.New("unique violation"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	var fatal FatalDBError
	assert.True(t, errors.As(err, &fatal))
}

func TestRetryExhausted(t *testing.T) {
	p := RetryPolicy{Base: time.Millisecond, Cap: time.Millisecond, MaxTries: 3}

	var calls int
	err := p.Do(context.Background(), func() error {
		calls++
		return NewSourceError("s3", errors.New("timeout"))
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsTransient(err))
}

func TestRetryContextCancel(t *testing.T) {
	p := RetryPolicy{Base: time.Hour, Cap: time.Hour, MaxTries: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func() error {
		return NewSourceError("sqs", errors.New("timeout"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}
