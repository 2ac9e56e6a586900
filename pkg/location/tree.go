package location

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/openepi/sentinel/pkg/record"
)

// Tree indexes locations by id, devices by device id, and districts for
// geometry lookups. Immutable after New.
type Tree struct {
	nodes     map[int]*Location
	devices   map[string]*Device
	deviceLoc map[string]int
	districts []*Location
	root      int
}

// New builds the tree and validates its shape: exactly one country root,
// and every non-root parent at a strictly higher level.
func New(locs []*Location, devices []*Device) (*Tree, error) {
	t := &Tree{
		nodes:     make(map[int]*Location, len(locs)),
		devices:   make(map[string]*Device, len(devices)),
		deviceLoc: make(map[string]int),
	}

	for _, l := range locs {
		if _, dup := t.nodes[l.ID]; dup {
			return nil, DuplicateLocationError(l.ID)
		}
		t.nodes[l.ID] = l
		if l.Level == LevelCountry {
			if t.root != 0 {
				return nil, MultipleRootsError(t.root, l.ID)
			}
			t.root = l.ID
		}
		if l.Level == LevelDistrict {
			t.districts = append(t.districts, l)
		}
		for _, dev := range l.DeviceIDs {
			t.deviceLoc[dev] = l.ID
		}
	}
	if t.root == 0 {
		return nil, NoRootError()
	}

	for _, l := range locs {
		if l.ID == t.root {
			continue
		}
		parent, ok := t.nodes[l.Parent]
		if !ok {
			return nil, MissingParentError(l.ID, l.Parent)
		}
		if levelRank[parent.Level] >= levelRank[l.Level] {
			return nil, ParentLevelError(l.ID, string(l.Level), string(parent.Level))
		}
	}

	for _, d := range devices {
		t.devices[d.DeviceID] = d
	}

	return t, nil
}

// Get returns a location by id.
func (t *Tree) Get(id int) (*Location, bool) {
	l, ok := t.nodes[id]
	return l, ok
}

// Root returns the country node id.
func (t *Tree) Root() int {
	return t.root
}

// Device returns device metadata, if the device is registered.
func (t *Tree) Device(id string) (*Device, bool) {
	d, ok := t.devices[id]
	return d, ok
}

// KnownDevice reports whether the device id maps to a clinic.
func (t *Tree) KnownDevice(id string) bool {
	_, ok := t.deviceLoc[id]
	return ok
}

// ResolveDevice walks from the clinic owning the device up to the country.
func (t *Tree) ResolveDevice(deviceID string) (*Chain, bool) {
	id, ok := t.deviceLoc[deviceID]
	if !ok {
		return nil, false
	}
	chain := t.chainFrom(id)
	if d, ok := t.devices[deviceID]; ok {
		chain.Tags = append(chain.Tags, d.Tags...)
	}
	return chain, true
}

// ResolveGeometry finds the district whose polygon contains the point and
// walks up from there. The clinic level stays empty.
func (t *Tree) ResolveGeometry(lon, lat float64) (*Chain, bool) {
	pt := orb.Point{lon, lat}
	for _, d := range t.districts {
		if len(d.Area) == 0 {
			continue
		}
		if planar.MultiPolygonContains(d.Area, pt) {
			chain := t.chainFrom(d.ID)
			chain.Geolocation = fmt.Sprintf("%f,%f", lat, lon)
			return chain, true
		}
	}
	return nil, false
}

func (t *Tree) chainFrom(id int) *Chain {
	chain := &Chain{}
	for id != 0 {
		l, ok := t.nodes[id]
		if !ok {
			break
		}
		switch l.Level {
		case LevelClinic:
			chain.Clinic = l.ID
			chain.ClinicName = l.Name
			chain.ClinicType = l.ClinicType
			chain.CaseReport = l.CaseReport
			chain.CaseType = l.CaseType
			if l.Point != nil {
				chain.Geolocation = fmt.Sprintf("%f,%f", l.Point.Lat(), l.Point.Lon())
			}
		case LevelDistrict:
			chain.District = l.ID
		case LevelRegion:
			chain.Region = l.ID
		case LevelZone:
			chain.Zone = l.ID
		case LevelCountry:
			chain.Country = l.ID
		}
		if l.ID == t.root {
			break
		}
		id = l.Parent
	}
	return chain
}

// Mode selects how a data-type resolves its location.
type Mode struct {
	// Geometry mode when true; device mode otherwise.
	Geometry bool

	// Device mode settings.
	Column string
	Prefix string

	// Geometry mode settings.
	LonColumn string
	LatColumn string
}

// ParseMode parses a per-type location configuration string:
// "deviceid[:<col>[:<prefix>]]" or "in_geometry$<lon_col>,<lat_col>".
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if cols, ok := strings.CutPrefix(s, "in_geometry$"); ok {
		lon, lat, found := strings.Cut(cols, ",")
		if !found || lon == "" || lat == "" {
			return Mode{}, ModeError(s)
		}
		return Mode{Geometry: true, LonColumn: strings.TrimSpace(lon), LatColumn: strings.TrimSpace(lat)}, nil
	}

	parts := strings.SplitN(s, ":", 3)
	if parts[0] != "deviceid" && parts[0] != "" {
		return Mode{}, ModeError(s)
	}
	m := Mode{Column: "deviceid"}
	if len(parts) > 1 && parts[1] != "" {
		m.Column = parts[1]
	}
	if len(parts) > 2 {
		m.Prefix = parts[2]
	}
	return m, nil
}

// Resolve applies the mode to a payload. A false result means the record
// cannot be placed and is dropped by the coder.
func (t *Tree) Resolve(m Mode, p record.Payload) (*Chain, bool) {
	if m.Geometry {
		lon, okLon := p.Float(m.LonColumn)
		lat, okLat := p.Float(m.LatColumn)
		if !okLon || !okLat {
			return nil, false
		}
		return t.ResolveGeometry(lon, lat)
	}
	id := p.String(m.Column)
	if id == "" {
		return nil, false
	}
	return t.ResolveDevice(m.Prefix + id)
}
