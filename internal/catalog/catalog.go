// Package catalog loads the CCI to control mapping and the control
// definitions used to title compliance reports.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stigwatch/internal/domain/models"
)

// controlsFile is the on-disk layout of a control definition file
type controlsFile struct {
	Controls []models.ControlDefinition `yaml:"controls"`
}

// LoadCatalog reads a CCI catalog file
func LoadCatalog(path string) (*models.ControlCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a CCI catalog document. Entries without a CCI or
// without references are dropped.
func ParseCatalog(data []byte) (*models.ControlCatalog, error) {
	var c models.ControlCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	entries := c.Entries[:0]
	for _, e := range c.Entries {
		e.CCI = strings.TrimSpace(e.CCI)
		if e.CCI == "" || len(e.References) == 0 {
			continue
		}
		for i := range e.References {
			ref := &e.References[i]
			ref.Index = strings.TrimSpace(ref.Index)
			if ref.Family == "" {
				ref.Family = models.ControlFamily(ref.Index)
			}
		}
		entries = append(entries, e)
	}
	c.Entries = entries
	return &c, nil
}

// LoadControls reads a control definition file
func LoadControls(path string) ([]models.ControlDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read control definitions: %w", err)
	}
	return ParseControls(data)
}

// ParseControls decodes a control definition document
func ParseControls(data []byte) ([]models.ControlDefinition, error) {
	var f controlsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse control definitions: %w", err)
	}
	out := f.Controls[:0]
	for _, d := range f.Controls {
		d.Family = strings.TrimSpace(d.Family)
		if d.Family == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Snapshot is an immutable pairing of a catalog and its control
// definitions, shared by concurrent aggregations.
type Snapshot struct {
	Catalog  *models.ControlCatalog
	Controls []models.ControlDefinition
}

// Load reads both files into a Snapshot
func Load(catalogPath, controlsPath string) (*Snapshot, error) {
	c, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	d, err := LoadControls(controlsPath)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Catalog: c, Controls: d}, nil
}

// Definitions returns family -> title for the controls of the given
// baseline. An empty level returns every control.
func (s *Snapshot) Definitions(level models.ImpactLevel) map[string]string {
	out := make(map[string]string, len(s.Controls))
	for _, d := range s.Controls {
		if d.AppliesTo(level) {
			out[d.Family] = d.Title
		}
	}
	return out
}

// CCIs returns the number of catalog entries
func (s *Snapshot) CCIs() int {
	if s.Catalog == nil {
		return 0
	}
	return len(s.Catalog.Entries)
}
