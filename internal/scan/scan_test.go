package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		want    models.ScanDialect
	}{
		{"cdf prefix", "scan_cdf.xml", models.ScanDialectCDF},
		{"xccdf prefix", "scan_xccdf.xml", models.ScanDialectXCCDF},
		{"default namespace", "scan_default.xml", models.ScanDialectDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDialect(readFixture(t, tt.fixture)))
		})
	}

	assert.Equal(t, models.ScanDialectUnknown, DetectDialect("<CHECKLIST></CHECKLIST>"))
}

func TestParse(t *testing.T) {
	t.Run("cdf results", func(t *testing.T) {
		set, err := Parse(readFixture(t, "scan_cdf.xml"))
		require.NoError(t, err)

		assert.Equal(t, models.ScanDialectCDF, set.Dialect)
		assert.Equal(t, "Example OS Security Technical Implementation Guide", set.Title)
		assert.Equal(t, "web01", set.HostName)
		assert.Equal(t, "10.0.0.5, 10.0.0.6", set.IPAddresses)
		assert.Equal(t, "web01.example.mil", set.FQDN)
		assert.Equal(t, "00:50:56:AA:BB:CC", set.MACAddresses)
		assert.Equal(t, "cpe:/a:spawar:scc:5.8", set.Tool)
		assert.Equal(t, "2024-03-01T10:22:33", set.ScanTime)

		assert.Equal(t, []models.RuleResult{
			{RuleID: "xccdf_mil.disa.stig_rule_SV-1000r1_rule", RuleVersion: "EXOS-00-000100", Result: "pass"},
			{RuleID: "xccdf_mil.disa.stig_rule_SV-1001r1_rule", RuleVersion: "EXOS-00-000200", Result: "FAIL"},
		}, set.Results)
	})

	t.Run("xccdf results", func(t *testing.T) {
		set, err := Parse(readFixture(t, "scan_xccdf.xml"))
		require.NoError(t, err)

		assert.Equal(t, models.ScanDialectXCCDF, set.Dialect)
		assert.Equal(t, "Example OS Security Technical Implementation Guide", set.Title)
		assert.Equal(t, "db01", set.HostName)
		assert.Equal(t, "192.168.1.20", set.IPAddresses)
		assert.Equal(t, "2024-04-02T08:00:00", set.ScanTime)
		require.Len(t, set.Results, 2)
		assert.Equal(t, "notapplicable", set.Results[0].Result)
	})

	t.Run("default namespace results", func(t *testing.T) {
		set, err := Parse(readFixture(t, "scan_default.xml"))
		require.NoError(t, err)

		assert.Equal(t, models.ScanDialectDefault, set.Dialect)
		assert.Equal(t, "app01", set.HostName)
		assert.Equal(t, "2024-05-05T12:00:00", set.ScanTime)
		assert.Equal(t, []models.RuleResult{
			{RuleID: "SV-1000r1_rule", RuleVersion: "EXOS-00-000100", Result: "fail"},
		}, set.Results)
	})

	t.Run("missing title yields an empty set", func(t *testing.T) {
		set, err := Parse(readFixture(t, "no_title.xml"))
		require.NoError(t, err)
		assert.True(t, set.IsEmpty())
		assert.Empty(t, set.Results)
	})

	t.Run("unknown dialect yields an empty set", func(t *testing.T) {
		set, err := Parse("<report><title>x</title></report>")
		require.NoError(t, err)
		assert.True(t, set.IsEmpty())
	})

	t.Run("syntax errors are reported", func(t *testing.T) {
		_, err := Parse("<cdf:Benchmark id=unquoted><cdf:title>x</cdf:title></cdf:Benchmark>")
		assert.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	t.Run("new checklist seeded from a template", func(t *testing.T) {
		set, err := Parse(readFixture(t, "scan_cdf.xml"))
		require.NoError(t, err)

		out, updated, err := Merge(set, readFixture(t, "template.ckl"), true)
		require.NoError(t, err)
		assert.Equal(t, 2, updated)

		c, err := ckl.Parse(out)
		require.NoError(t, err)

		assert.Equal(t, "None", c.Asset.Role)
		assert.Equal(t, "Computing", c.Asset.AssetType)
		assert.Equal(t, "web01", c.Asset.HostName)
		assert.Equal(t, "10.0.0.5, 10.0.0.6", c.Asset.HostIP)
		assert.Equal(t, "00:50:56:AA:BB:CC", c.Asset.HostMAC)
		assert.Equal(t, "web01.example.mil", c.Asset.HostFQDN)
		assert.Contains(t, c.Asset.TargetComment, "cpe:/a:spawar:scc:5.8")

		require.Len(t, c.Findings, 2)
		assert.Equal(t, models.StatusNotAFinding, c.Findings[0].Status)
		assert.Equal(t, "Tool: cpe:/a:spawar:scc:5.8\nTime: 2024-03-01T10:22:33\nResult: pass", c.Findings[0].FindingDetails)
		assert.Equal(t, models.StatusOpen, c.Findings[1].Status)
		assert.Equal(t, "Tool: cpe:/a:spawar:scc:5.8\nTime: 2024-03-01T10:22:33\nResult: FAIL", c.Findings[1].FindingDetails)
	})

	t.Run("existing checklist keeps what the scan does not know", func(t *testing.T) {
		set, err := Parse(readFixture(t, "scan_xccdf.xml"))
		require.NoError(t, err)

		existing := readFixture(t, "template.ckl")
		seeded, updated, err := Merge(&models.ScanResultSet{
			Title:        set.Title,
			MACAddresses: "00:11:22:33:44:55",
			Results: []models.RuleResult{
				{RuleVersion: "EXOS-00-000200", Result: "fail"},
			},
		}, existing, true)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		out, updated, err := Merge(set, seeded, false)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)
		c, err := ckl.Parse(out)
		require.NoError(t, err)

		assert.Equal(t, "db01", c.Asset.HostName)
		assert.Equal(t, "192.168.1.20", c.Asset.HostIP)
		assert.Equal(t, "00:11:22:33:44:55", c.Asset.HostMAC)
		assert.Equal(t, "None", c.Asset.Role)

		assert.Equal(t, models.StatusNotApplicable, c.Findings[0].Status)
		// notchecked leaves the earlier fail in place
		assert.Equal(t, models.StatusOpen, c.Findings[1].Status)
		assert.Contains(t, c.Findings[1].FindingDetails, "Result: fail")
	})

	t.Run("template errors are reported", func(t *testing.T) {
		_, _, err := Merge(&models.ScanResultSet{Title: "x"}, "<CHECKLIST><ASSET>", false)
		assert.Error(t, err)
	})
}

func TestApply(t *testing.T) {
	c := &models.Checklist{
		Asset: models.Asset{HostName: "old"},
		Findings: []models.Finding{
			{Attributes: models.Attributes{{Name: models.AttrRuleVer, Value: "R-1"}}, Status: models.StatusNotReviewed},
			{Attributes: models.Attributes{{Name: models.AttrRuleVer, Value: "R-2"}}, Status: models.StatusNotReviewed},
			{Attributes: models.Attributes{{Name: models.AttrRuleVer, Value: "R-3"}}, Status: models.StatusNotReviewed},
		},
	}
	set := &models.ScanResultSet{
		Title: "x",
		Results: []models.RuleResult{
			{RuleVersion: "R-1", Result: "Pass"},
			{RuleVersion: "R-2", Result: "error"},
			{RuleVersion: "R-9", Result: "fail"},
		},
	}

	assert.Equal(t, 1, Apply(c, set, false))
	assert.Equal(t, "old", c.Asset.HostName)
	assert.Equal(t, "", c.Asset.Role)
	assert.Equal(t, models.StatusNotAFinding, c.Findings[0].Status)
	assert.Equal(t, "Tool: SCAP scan\nTime: \nResult: Pass", c.Findings[0].FindingDetails)
	assert.Equal(t, models.StatusNotReviewed, c.Findings[1].Status)
	assert.Equal(t, models.StatusNotReviewed, c.Findings[2].Status)

	assert.Equal(t, 0, Apply(c, nil, true))
}
