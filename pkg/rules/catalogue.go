package rules

import (
	"sort"
	"strings"
)

// Group holds the rules sharing a mutual-exclusion group for one
// data-type. When HasPriority is set, the satisfied rule with the lowest
// priority wins; otherwise the first satisfied rule wins and the rest of
// the group is skipped.
type Group struct {
	Type        string
	Name        string
	HasPriority bool
	Rules       []*Rule
}

// Catalogue is the loaded, compiled rule set. It is immutable after Load
// and safe for concurrent readers.
type Catalogue struct {
	groups     map[string][]*Group
	byID       map[string]*Variable
	matchIndex MatchIndex
	alertVars  []*Variable
}

// Load compiles the catalogue. mainForms maps each data-type onto its main
// form, which decides match-index eligibility. Rules are sorted by pk so
// group iteration and priority tie-breaking are deterministic.
func Load(vars []*Variable, mainForms map[string]string) (*Catalogue, error) {
	sorted := make([]*Variable, len(vars))
	copy(sorted, vars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PK < sorted[j].PK })

	cat := &Catalogue{
		groups:     make(map[string][]*Group),
		byID:       make(map[string]*Variable),
		matchIndex: make(MatchIndex),
	}
	groupIdx := make(map[string]*Group)

	for _, v := range sorted {
		if _, dup := cat.byID[v.ID]; dup {
			return nil, DuplicateRuleError(v.ID)
		}
		cat.byID[v.ID] = v

		kind, _, err := ParseAlertType(v.AlertType)
		if err != nil {
			return nil, err
		}
		if v.Alert && (kind == AlertThreshold || kind == AlertDouble) {
			cat.alertVars = append(cat.alertVars, v)
		}

		if cat.matchIndex.add(v, mainForms) {
			continue
		}

		rule, err := Compile(v)
		if err != nil {
			return nil, err
		}

		groupName := v.Group
		if groupName == "" {
			groupName = v.ID
		}
		key := v.Type + "\x00" + groupName
		g, ok := groupIdx[key]
		if !ok {
			g = &Group{Type: v.Type, Name: groupName}
			groupIdx[key] = g
			cat.groups[v.Type] = append(cat.groups[v.Type], g)
		}
		if v.Priority > 0 {
			g.HasPriority = true
		}
		g.Rules = append(g.Rules, rule)
	}

	return cat, nil
}

// Groups returns the rule groups for a data-type, ordered by the lowest pk
// in each group.
func (c *Catalogue) Groups(typ string) []*Group {
	return c.groups[typ]
}

// Get returns the catalogue entry for a rule id.
func (c *Catalogue) Get(id string) (*Variable, bool) {
	v, ok := c.byID[id]
	return v, ok
}

// AlertVariables returns the rules that need multi-record alert detection
// (threshold and double), in pk order.
func (c *Catalogue) AlertVariables() []*Variable {
	return c.alertVars
}

// MatchEntries returns the precomputed match-index for a data-type.
func (c *Catalogue) MatchEntries(typ string) ColumnIndex {
	return c.matchIndex[typ]
}

// MatchIndex precomputes column → value → entries for plain equality rules
// so the coder sweeps the payload in O(columns) instead of evaluating every
// rule.
type MatchIndex map[string]ColumnIndex

// ColumnIndex maps a column to the values that trigger entries.
type ColumnIndex map[string]map[string][]MatchEntry

// MatchEntry is what a match-index hit contributes to a coded record.
type MatchEntry struct {
	ID         string
	Categories []string
}

// add puts eligible variables into the index and reports whether the
// variable was consumed. Eligible: method=match on a single column of the
// type's main form, no priority, no group exclusion, no alert or disregard
// behavior, no calculation, no secondary condition.
func (idx MatchIndex) add(v *Variable, mainForms map[string]string) bool {
	if v.Method != "match" || v.Priority != 0 {
		return false
	}
	if v.Group != "" && v.Group != v.ID {
		return false
	}
	if v.Alert || v.Disregard || v.Calculation != "" ||
		v.SecondaryCondition != "" || v.MultipleLink != "" {
		return false
	}
	if strings.ContainsAny(v.DBColumn, ";,") || v.DBColumn == "" || v.Condition == "" {
		return false
	}
	if mainForms[v.Type] != v.Form {
		return false
	}

	col := strings.TrimSpace(v.DBColumn)
	byCol, ok := idx[v.Type]
	if !ok {
		byCol = make(ColumnIndex)
		idx[v.Type] = byCol
	}
	byVal, ok := byCol[col]
	if !ok {
		byVal = make(map[string][]MatchEntry)
		byCol[col] = byVal
	}
	for _, tok := range splitList(v.Condition) {
		byVal[tok] = append(byVal[tok], MatchEntry{ID: v.ID, Categories: v.Category})
	}
	return true
}
