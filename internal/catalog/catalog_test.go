package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/internal/domain/models"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "cci.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Entries, 3)

	assert.Equal(t, "CCI-000001", c.Entries[0].CCI)
	assert.Equal(t, "AC-1", c.Entries[0].References[0].Family)
	assert.Equal(t, "AC-1 a 1", c.Entries[0].References[0].Index)

	tuples := c.Tuples()
	require.Len(t, tuples, 4)
	assert.Equal(t, models.CatalogTuple{CCI: "CCI-000015", Family: "AC-2", Index: "AC-2 (1)"}, tuples[1])
	assert.Equal(t, "AC-2", tuples[2].Family)
	assert.Equal(t, "AU-3", tuples[3].Family)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := ParseCatalog([]byte("entries: [unterminated"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)

	c, err := ParseCatalog(nil)
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
}

func TestLoadControls(t *testing.T) {
	defs, err := LoadControls(filepath.Join("testdata", "controls.yaml"))
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "AC-1", defs[0].Family)
	assert.True(t, defs[0].Low)
	assert.False(t, defs[2].Low)
}

func TestSnapshotDefinitions(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "cci.yaml"), filepath.Join("testdata", "controls.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.CCIs())

	tests := []struct {
		level models.ImpactLevel
		want  []string
	}{
		{"", []string{"AC-1", "AC-2", "AU-3"}},
		{models.ImpactLow, []string{"AC-1", "AC-2"}},
		{models.ImpactModerate, []string{"AC-1", "AC-2", "AU-3"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			defs := s.Definitions(tt.level)
			var got []string
			for family := range defs {
				got = append(got, family)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	assert.Equal(t, "Account Management", s.Definitions("")["AC-2"])
}
