package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/pkg/logger"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example OS Security Technical Implementation Guide", "example os"},
		{"Example OS STIG SCAP Benchmark", "example os"},
		{"Microsoft_Windows_10_STIG", "microsoft windows 10"},
		{"Red Hat Enterprise Linux 8 (RHEL 8) STIG", "red hat enterprise linux 8 rhel 8"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore("testdata", logger.NewNop())
	require.NoError(t, s.Load(ctx))

	all := s.Templates()
	require.Len(t, all, 2)
	assert.Equal(t, "Example OS Security Technical Implementation Guide", all[0].Title)
	assert.Equal(t, "Other DB Security Technical Implementation Guide", all[1].Title)
	assert.Equal(t, "Other_DB_STIG", all[1].StigID)

	t.Run("exact title", func(t *testing.T) {
		tpl, err := s.Lookup(ctx, "Other DB Security Technical Implementation Guide")
		require.NoError(t, err)
		require.NotNil(t, tpl)
		assert.Equal(t, "Other_DB_STIG", tpl.StigID)
		assert.Contains(t, tpl.RawXML, "<CHECKLIST>")
	})

	t.Run("normalized title", func(t *testing.T) {
		tpl, err := s.Lookup(ctx, "Example OS STIG SCAP Benchmark")
		require.NoError(t, err)
		require.NotNil(t, tpl)
		assert.Equal(t, "Example_OS_STIG", tpl.StigID)
	})

	t.Run("unknown title", func(t *testing.T) {
		tpl, err := s.Lookup(ctx, "Nothing Like It")
		require.NoError(t, err)
		assert.Nil(t, tpl)
	})

	t.Run("ids are stable across loads", func(t *testing.T) {
		again := NewStore("testdata", logger.NewNop())
		require.NoError(t, again.Load(ctx))
		assert.Equal(t, all[0].ID, again.Templates()[0].ID)
	})
}

func TestStoreMissingDirectory(t *testing.T) {
	s := NewStore("testdata/does-not-exist", logger.NewNop())
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Templates())
}
