package iosource

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
)

// CSVSource reads one <form>.csv snapshot per configured form from the
// data directory. The header row names the payload columns; the uuid
// lives in its usual column, so admission control finds it the same way
// it does for streamed records.
type CSVSource struct {
	dir     string
	country *config.CountryConfig
}

// NewCSVSource creates the snapshot reader for the initial import.
func NewCSVSource(dir string, cc *config.CountryConfig) *CSVSource {
	return &CSVSource{dir: dir, country: cc}
}

func (s *CSVSource) Name() string { return "csv:" + s.dir }

// Run reads the forms in name order, one full file at a time. A missing
// file only warns: deployments rarely snapshot every form.
func (s *CSVSource) Run(ctx context.Context, emit Emit) error {
	forms := make([]string, 0, len(s.country.Tables))
	for form := range s.country.Tables {
		forms = append(forms, form)
	}
	sort.Strings(forms)

	for _, form := range forms {
		path := filepath.Join(s.dir, form+".csv")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slog.Warn("No snapshot for form", "form", form, "path", path)
			continue
		}
		if err := s.readForm(ctx, form, path, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSource) readForm(
	ctx context.Context,
	form, path string,
	emit Emit,
) error {
	f, err := os.Open(path)
	if err != nil {
		return pipeline.NewSourceError(s.Name(), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return pipeline.NewSourceError(s.Name(), err)
	}

	uuidField := s.country.UUIDField(form)
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pipeline.NewSourceError(s.Name(), err)
		}

		p := make(record.Payload, len(header))
		for i, col := range header {
			if i < len(row) {
				p[col] = row[i]
			}
		}
		rec := record.RawRecord{Form: form, Data: p}
		if uuid, ok := p[uuidField].(string); ok {
			rec.UUID = uuid
		}
		if err := emit(ctx, pipeline.Item{Form: form, Record: rec}); err != nil {
			return err
		}
	}
}
