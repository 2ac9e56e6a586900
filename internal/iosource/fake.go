package iosource

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
	"github.com/openepi/sentinel/pkg/rules"
)

// FakeSource generates synthetic submissions for demos and load tests.
// Payloads draw their codeable values from the rule catalogue's match
// index, so generated records flow through coding and can raise alerts.
type FakeSource struct {
	country *config.CountryConfig
	cat     *rules.Catalogue
	devices []string
	limiter *rate.Limiter
	total   int
	faker   *gofakeit.Faker
}

// NewFakeSource creates the generator. interval and perInterval shape
// the emission rate; total caps the run (0 streams until cancelled).
func NewFakeSource(
	cc *config.CountryConfig,
	cat *rules.Catalogue,
	devices []string,
	interval time.Duration,
	perInterval, total int,
) *FakeSource {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 && perInterval > 0 {
		limiter = rate.NewLimiter(
			rate.Every(interval/time.Duration(perInterval)), perInterval)
	}
	return &FakeSource{
		country: cc,
		cat:     cat,
		devices: devices,
		limiter: limiter,
		total:   total,
		faker:   gofakeit.New(0),
	}
}

func (s *FakeSource) Name() string { return "fake" }

func (s *FakeSource) Run(ctx context.Context, emit Emit) error {
	for n := 0; s.total == 0 || n < s.total; n++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return pipeline.NewSourceError(s.Name(), err)
		}

		dt := s.country.DataTypes[s.faker.Number(0, len(s.country.DataTypes)-1)]
		rec := s.generate(&dt)
		if err := emit(ctx, pipeline.Item{Form: dt.Form, Record: rec}); err != nil {
			return err
		}
	}
	return nil
}

func (s *FakeSource) generate(dt *config.DataType) record.RawRecord {
	now := time.Now().UTC()
	id := uuid.NewString()

	p := record.Payload{
		s.country.UUIDField(dt.Form): id,
		dt.DateColumn:                s.faker.DateRange(now.AddDate(0, 0, -14), now).Format("2006-01-02"),
		"SubmissionDate":             now.Format(time.RFC3339),
		"pt./gender":                 s.faker.RandomString([]string{"male", "female"}),
		"pt./age":                    strconv.Itoa(s.faker.Number(0, 90)),
	}
	if len(s.devices) > 0 {
		p["deviceid"] = s.faker.RandomString(s.devices)
	}

	// One codeable column per record, drawn from the match index.
	if col, val, ok := s.matchValue(dt.Name); ok {
		p[col] = val
	}
	return record.RawRecord{Form: dt.Form, UUID: id, Data: p}
}

// matchValue picks a random (column, value) pair that fires exactly one
// match rule of the data type.
func (s *FakeSource) matchValue(typ string) (string, string, bool) {
	index := s.cat.MatchEntries(typ)
	if len(index) == 0 {
		return "", "", false
	}
	cols := make([]string, 0, len(index))
	for col := range index {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	col := cols[s.faker.Number(0, len(cols)-1)]

	vals := make([]string, 0, len(index[col]))
	for val := range index[col] {
		vals = append(vals, val)
	}
	sort.Strings(vals)
	return col, vals[s.faker.Number(0, len(vals)-1)], true
}
