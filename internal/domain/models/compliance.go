package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImpactLevel is a FIPS-199 baseline used to scope the control set
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactModerate ImpactLevel = "moderate"
	ImpactHigh     ImpactLevel = "high"
)

// ParseImpactLevel returns the impact level for s, or "" for anything else
// (meaning no filter).
func ParseImpactLevel(s string) ImpactLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow
	case "moderate", "medium":
		return ImpactModerate
	case "high":
		return ImpactHigh
	default:
		return ""
	}
}

// ControlReference is one control a CCI maps to
type ControlReference struct {
	Family string `yaml:"family,omitempty" json:"family"`
	Index  string `yaml:"index" json:"index"`
	Title  string `yaml:"title,omitempty" json:"title,omitempty"`
}

// CatalogEntry maps one CCI to the controls it supports
type CatalogEntry struct {
	CCI        string             `yaml:"cci" json:"cci"`
	References []ControlReference `yaml:"references" json:"references"`
}

// ControlCatalog is the CCI -> control mapping table
type ControlCatalog struct {
	Entries []CatalogEntry `yaml:"entries" json:"entries"`
}

// CatalogTuple is a flattened (cci, family, index, title) row of the catalog
type CatalogTuple struct {
	CCI    string
	Family string
	Index  string
	Title  string
}

// Tuples flattens the catalog, one tuple per reference
func (c *ControlCatalog) Tuples() []CatalogTuple {
	if c == nil {
		return nil
	}
	var out []CatalogTuple
	for _, e := range c.Entries {
		for _, ref := range e.References {
			family := ref.Family
			if family == "" {
				family = ControlFamily(ref.Index)
			}
			out = append(out, CatalogTuple{
				CCI:    e.CCI,
				Family: family,
				Index:  ref.Index,
				Title:  ref.Title,
			})
		}
	}
	return out
}

// ControlDefinition describes one control family and the baselines it
// belongs to
type ControlDefinition struct {
	Family   string `yaml:"family" json:"family"`
	Title    string `yaml:"title" json:"title"`
	Low      bool   `yaml:"low" json:"low"`
	Moderate bool   `yaml:"moderate" json:"moderate"`
	High     bool   `yaml:"high" json:"high"`
}

// AppliesTo reports whether the control is part of the given baseline.
// An empty level matches every control.
func (d ControlDefinition) AppliesTo(level ImpactLevel) bool {
	switch level {
	case ImpactLow:
		return d.Low
	case ImpactModerate:
		return d.Moderate
	case ImpactHigh:
		return d.High
	default:
		return true
	}
}

// StatusRecord is the rolled up status of one control on one checklist
type StatusRecord struct {
	ChecklistID uuid.UUID `json:"checklist_id"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	HostName    string    `json:"host_name"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// ComplianceRecord is the status of one control family across a system
type ComplianceRecord struct {
	Control    string         `json:"control"`
	Title      string         `json:"title"`
	SortKey    string         `json:"sort_key"`
	Checklists []StatusRecord `json:"checklists"`
}

// MergeStatus combines the status already recorded for a checklist/control
// pair with a newly observed finding status. Open always wins. Open and
// Not_Reviewed are otherwise sticky, and any other combination collapses to
// NotAFinding since a control is only clean or not clean at this level.
func MergeStatus(existing, observed Status) Status {
	if observed == StatusOpen {
		return StatusOpen
	}
	if existing != StatusOpen && existing != StatusNotReviewed {
		if observed == StatusNotReviewed {
			return StatusNotReviewed
		}
		return StatusNotAFinding
	}
	return existing
}

// ControlFamily truncates a control index at the first space or period,
// e.g. "AC-2 (1)" and "AC-2.1" both become "AC-2".
func ControlFamily(index string) string {
	index = strings.TrimSpace(index)
	if i := strings.IndexAny(index, " ."); i >= 0 {
		return index[:i]
	}
	return index
}

// ControlSortKey builds a key that orders controls numerically within a
// family using plain string comparison: "AC-1" -> "AC-01", "AC-2 (3)" ->
// "AC-02", "AC-10" -> "AC-10".
func ControlSortKey(index string) string {
	index = strings.TrimSpace(index)
	hyphen := strings.Index(index, "-")
	if hyphen < 0 {
		return index
	}
	prefix := index[:hyphen+1]
	rest := index[hyphen+1:]
	if i := strings.IndexAny(rest, " ."); i >= 0 {
		rest = rest[:i]
	}
	if len(rest) == 1 {
		rest = "0" + rest
	}
	return prefix + rest
}

// ComplianceReport is the control-level posture of one system
type ComplianceReport struct {
	SystemID     uuid.UUID          `json:"system_id"`
	Impact       ImpactLevel        `json:"impact,omitempty"`
	MajorControl string             `json:"major_control,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Checklists   int                `json:"checklists"`
	Controls     []ComplianceRecord `json:"controls"`
}
