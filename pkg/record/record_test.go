package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadString(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
		col  string
		want string
	}{
		{"missing column", Payload{}, "a", ""},
		{"nil value", Payload{"a": nil}, "a", ""},
		{"string value", Payload{"a": "A00"}, "a", "A00"},
		{"integral float", Payload{"a": float64(34)}, "a", "34"},
		{"fractional float", Payload{"a": 1.5}, "a", "1.5"},
		{"bool true", Payload{"a": true}, "a", "1"},
		{"list joined", Payload{"a": []any{"fever", "cough"}}, "a", "fever,cough"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String(tt.col))
		})
	}
}

func TestPayloadFloat(t *testing.T) {
	p := Payload{
		"num":    float64(12),
		"text":   "34.5",
		"spaced": " 7 ",
		"bad":    "abc",
	}

	f, ok := p.Float("num")
	assert.True(t, ok)
	assert.Equal(t, 12.0, f)

	f, ok = p.Float("text")
	assert.True(t, ok)
	assert.Equal(t, 34.5, f)

	f, ok = p.Float("spaced")
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = p.Float("bad")
	assert.False(t, ok)

	_, ok = p.Float("missing")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			"rfc3339",
			"2017-06-10T00:00:00Z",
			time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			"date only",
			"2017-06-10",
			time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			"rfc2822",
			"Sat, 10 Jun 2017 12:30:00 +0000",
			time.Date(2017, 6, 10, 12, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := ParseDate("not a date")
	require.Error(t, err)
	var perr ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestDateErrors(t *testing.T) {
	p := Payload{"d": ""}
	_, err := p.Date("d")
	require.Error(t, err)

	_, err = p.Date("missing")
	require.Error(t, err)
}

func TestFlattenLists(t *testing.T) {
	p := Payload{
		"symptoms": []any{"fever", "rash"},
		"name":     "Ali",
		"count":    float64(2),
	}
	p.FlattenLists()

	assert.Equal(t, "fever,rash", p["symptoms"])
	assert.Equal(t, "Ali", p["name"])
	assert.Equal(t, float64(2), p["count"])
}

func TestDay(t *testing.T) {
	d := Day(time.Date(2017, 6, 10, 23, 59, 1, 0, time.UTC))
	assert.Equal(t, time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC), d)
}
