package ioconfig

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/record"
)

// LoadLocations reads the location bootstrap files named by the country
// config and returns the nodes and devices for the tree. Zones and the
// GeoJSON district areas are optional.
func LoadLocations(dir string, cc *config.CountryConfig) ([]*location.Location, []*location.Device, error) {
	files := cc.Locations

	var locs []*location.Location

	// The country root is implicit: id 1, named after the deployment.
	locs = append(locs, &location.Location{
		ID:    1,
		Name:  cc.Name,
		Level: location.LevelCountry,
	})

	type levelFile struct {
		name  string
		level location.Level
	}
	for _, lf := range []levelFile{
		{files.Zones, location.LevelZone},
		{files.Regions, location.LevelRegion},
		{files.Districts, location.LevelDistrict},
		{files.Clinics, location.LevelClinic},
	} {
		if lf.name == "" {
			continue
		}
		path := filepath.Join(dir, lf.name)
		rows, col, err := readCSV(path)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			loc, err := parseLocation(path, row, col, lf.level)
			if err != nil {
				return nil, nil, err
			}
			locs = append(locs, loc)
		}
	}

	if files.GeoJSON != "" {
		if err := attachAreas(filepath.Join(dir, files.GeoJSON), locs); err != nil {
			return nil, nil, err
		}
	}

	var devices []*location.Device
	if files.Devices != "" {
		var err error
		devices, err = loadDevices(filepath.Join(dir, files.Devices))
		if err != nil {
			return nil, nil, err
		}
	}

	return locs, devices, nil
}

func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, NewLoadError(path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, NewLoadError(path, err)
	}
	if len(rows) == 0 {
		return nil, nil, NewFieldError(path, "rows", "empty file")
	}
	return rows[1:], headerIndex(rows[0]), nil
}

func parseLocation(path string, row []string, col map[string]int, level location.Level) (*location.Location, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id, err := strconv.Atoi(field("id"))
	if err != nil {
		return nil, NewFieldError(path, "id", field("id"))
	}
	parent := 1
	if s := field("parent"); s != "" {
		if parent, err = strconv.Atoi(s); err != nil {
			return nil, NewFieldError(path, "parent", s)
		}
	}

	loc := &location.Location{
		ID:     id,
		Name:   field("name"),
		Level:  level,
		Parent: parent,
	}

	if level != location.LevelClinic {
		return loc, nil
	}

	if s := field("deviceid"); s != "" {
		for _, d := range strings.Split(s, ";") {
			if d = strings.TrimSpace(d); d != "" {
				loc.DeviceIDs = append(loc.DeviceIDs, d)
			}
		}
	}
	loc.ClinicType = field("clinic_type")
	loc.CaseReport = parseBool(field("case_report"))
	if s := field("case_type"); s != "" {
		loc.CaseType = strings.Split(s, ";")
	}
	if lat, lon := field("latitude"), field("longitude"); lat != "" && lon != "" {
		la, errLa := strconv.ParseFloat(lat, 64)
		lo, errLo := strconv.ParseFloat(lon, 64)
		if errLa != nil || errLo != nil {
			return nil, NewFieldError(path, "latitude/longitude", lat+","+lon)
		}
		pt := orb.Point{lo, la}
		loc.Point = &pt
	}
	if s := field("start_date"); s != "" {
		d, err := record.ParseDate(s)
		if err != nil {
			return nil, NewFieldError(path, "start_date", s)
		}
		loc.StartDate = d
	}
	if s := field("population"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, NewFieldError(path, "population", s)
		}
		loc.Population = n
	}
	return loc, nil
}

// attachAreas joins GeoJSON features onto district nodes through the
// feature's id property.
func attachAreas(path string, locs []*location.Location) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewLoadError(path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return NewLoadError(path, err)
	}

	byID := make(map[int]*location.Location, len(locs))
	for _, loc := range locs {
		byID[loc.ID] = loc
	}

	for _, feat := range fc.Features {
		id, ok := featureID(feat)
		if !ok {
			continue
		}
		loc, ok := byID[id]
		if !ok {
			continue
		}
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			loc.Area = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			loc.Area = g
		}
	}
	return nil
}

func featureID(feat *geojson.Feature) (int, bool) {
	for _, key := range []string{"id", "district_id"} {
		v, ok := feat.Properties[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t), true
		case int:
			return t, true
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func loadDevices(path string) ([]*location.Device, error) {
	rows, col, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	devices := make([]*location.Device, 0, len(rows))
	for _, row := range rows {
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		id := field("device_id")
		if id == "" {
			id = field("deviceid")
		}
		if id == "" {
			continue
		}
		d := &location.Device{DeviceID: id}
		if s := field("tags"); s != "" {
			for _, tag := range strings.Split(s, ";") {
				if tag = strings.TrimSpace(tag); tag != "" {
					d.Tags = append(d.Tags, tag)
				}
			}
		}
		if s := field("start_date"); s != "" {
			t, err := record.ParseDate(s)
			if err != nil {
				return nil, NewFieldError(path, "start_date", s)
			}
			d.StartDate = t
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// LoadExclusions reads the per-form uuid exclusion lists into sets.
func LoadExclusions(dir string, cc *config.CountryConfig) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool, len(cc.ExclusionLists))
	for form, names := range cc.ExclusionLists {
		set := make(map[string]bool)
		for _, name := range names {
			path := filepath.Join(dir, name)
			rows, col, err := readCSV(path)
			if err != nil {
				return nil, err
			}
			i, ok := col["uuid"]
			if !ok {
				return nil, NewFieldError(path, "header", "missing uuid column")
			}
			for _, row := range rows {
				if i < len(row) && row[i] != "" {
					set[strings.TrimSpace(row[i])] = true
				}
			}
		}
		out[form] = set
	}
	return out, nil
}
