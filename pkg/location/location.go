// Package location holds the canonical location tree and resolves records
// to their location chain, either through the reporting device id or
// through a geo-point contained in a district polygon. The tree is built
// once at startup and shared read-only.
package location

import (
	"time"

	"github.com/paulmach/orb"
)

// Level is a node's depth class in the location tree.
type Level string

const (
	LevelCountry  Level = "country"
	LevelZone     Level = "zone"
	LevelRegion   Level = "region"
	LevelDistrict Level = "district"
	LevelClinic   Level = "clinic"
)

var levelRank = map[Level]int{
	LevelCountry:  0,
	LevelZone:     1,
	LevelRegion:   2,
	LevelDistrict: 3,
	LevelClinic:   4,
}

// Location is one node of the tree.
type Location struct {
	ID         int
	Name       string
	Level      Level
	Parent     int
	DeviceIDs  []string
	Point      *orb.Point
	Area       orb.MultiPolygon
	ClinicType string
	CaseReport bool
	CaseType   []string
	StartDate  time.Time
	Population int
}

// Device maps a reporting device onto its tags and activation date.
type Device struct {
	DeviceID  string
	Tags      []string
	StartDate time.Time
}

// Chain is a resolved location lineage from clinic up to country. A zero
// id means the level is absent (for example a country without zones).
type Chain struct {
	Country     int
	Zone        int
	Region      int
	District    int
	Clinic      int
	ClinicName  string
	ClinicType  string
	CaseReport  bool
	CaseType    []string
	Tags        []string
	Geolocation string
}
