// Package epiweek computes surveillance week numbers. Three schemes are
// supported: "international" (weeks counted from January 1st),
// "day:<weekday>" (weeks anchored to the first such weekday on or after
// January 1st), and explicit per-year start dates.
package epiweek

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openepi/sentinel/pkg/record"
)

// Strategy53 controls what happens to a computed week outside [1,52].
type Strategy53 string

const (
	LeaveAsIs   Strategy53 = "leave_as_is"
	IncludeIn52 Strategy53 = "include_in_52"
	IncludeIn1  Strategy53 = "include_in_1"
)

type schemeKind int

const (
	kindInternational schemeKind = iota
	kindWeekday
	kindExplicit
)

// Scheme determines how epi-years start.
type Scheme struct {
	kind    schemeKind
	weekday time.Weekday
	starts  map[int]time.Time
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse builds a Scheme from its configuration string. The explicit form
// takes a year→date map; the other forms ignore it.
func Parse(spec string, explicit map[int]string) (Scheme, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	switch {
	case spec == "" || spec == "international":
		return Scheme{kind: kindInternational}, nil
	case strings.HasPrefix(spec, "day:"):
		arg := strings.TrimPrefix(spec, "day:")
		if wd, ok := weekdayNames[arg]; ok {
			return Scheme{kind: kindWeekday, weekday: wd}, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n > 6 {
			return Scheme{}, SchemeError(spec)
		}
		return Scheme{kind: kindWeekday, weekday: time.Weekday(n)}, nil
	case spec == "explicit":
		if len(explicit) == 0 {
			return Scheme{}, SchemeError(spec)
		}
		starts := make(map[int]time.Time, len(explicit))
		for year, s := range explicit {
			d, err := record.ParseDate(s)
			if err != nil {
				return Scheme{}, fmt.Errorf("epi week start for %d: %w", year, err)
			}
			starts[year] = record.Day(d)
		}
		return Scheme{kind: kindExplicit, starts: starts}, nil
	default:
		return Scheme{}, SchemeError(spec)
	}
}

// YearStart returns the first day of week 1 of the given epi-year.
func (s Scheme) YearStart(year int) time.Time {
	switch s.kind {
	case kindWeekday:
		d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		for d.Weekday() != s.weekday {
			d = d.AddDate(0, 0, 1)
		}
		return d
	case kindExplicit:
		if d, ok := s.starts[year]; ok {
			return d
		}
		// Fall back to January 1st for unconfigured years.
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Week returns the epi-year and epi-week containing d. Days before the
// scheme's start of their calendar year belong to the previous epi-year,
// which may push the week past 52.
func (s Scheme) Week(d time.Time) (int, int) {
	d = record.Day(d)
	year := d.Year()
	start := s.YearStart(year)
	if d.Before(start) {
		year--
		start = s.YearStart(year)
	}
	week := int(d.Sub(start).Hours()/24/7) + 1
	return year, week
}

// Start returns the first day of the given epi-week.
func (s Scheme) Start(year, week int) time.Time {
	return s.YearStart(year).AddDate(0, 0, (week-1)*7)
}

// Apply53 applies the configured strategy to weeks past 52.
func Apply53(year, week int, strategy Strategy53) (int, int) {
	if week <= 52 {
		return year, week
	}
	switch strategy {
	case IncludeIn52:
		return year, 52
	case IncludeIn1:
		return year + 1, 1
	default:
		return year, week
	}
}
