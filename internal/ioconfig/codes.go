package ioconfig

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/rules"
)

// LoadCodes reads the rule catalogue CSV named by the country config. The
// file is header-addressed; column order does not matter.
func LoadCodes(dir string, cc *config.CountryConfig) ([]*rules.Variable, error) {
	path := filepath.Join(dir, cc.CodesFile)

	f, err := os.Open(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, NewLoadError(path, err)
	}
	if len(rows) < 2 {
		return nil, NewFieldError(path, "rows", "catalogue has no rules")
	}

	col := headerIndex(rows[0])
	if _, ok := col["id"]; !ok {
		return nil, NewFieldError(path, "header", strings.Join(rows[0], ","))
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	vars := make([]*rules.Variable, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := field(row, "id")
		if id == "" {
			continue
		}
		v := &rules.Variable{
			ID:                 id,
			Type:               field(row, "type"),
			Form:               field(row, "form"),
			DBColumn:           field(row, "db_column"),
			Method:             field(row, "method"),
			Condition:          field(row, "condition"),
			Calculation:        field(row, "calculation"),
			Category:           splitCategories(field(row, "category")),
			Group:              field(row, "group"),
			MultipleLink:       field(row, "multiple_link"),
			SecondaryCondition: field(row, "secondary_condition"),
			AlertType:          field(row, "alert_type"),
			Alert:              parseBool(field(row, "alert")),
			Disregard:          parseBool(field(row, "disregard")),
		}
		if s := field(row, "pk"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, NewFieldError(path, "pk", s)
			}
			v.PK = n
		}
		if s := field(row, "priority"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, NewFieldError(path, "priority", s)
			}
			v.Priority = n
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func splitCategories(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
