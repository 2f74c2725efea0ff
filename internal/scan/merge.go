package scan

import (
	"fmt"
	"strings"

	"stigwatch/internal/ckl"
	"stigwatch/internal/domain/models"
)

const (
	defaultRole      = "None"
	defaultAssetType = "Computing"
	defaultTool      = "SCAP scan"
)

// Merge applies scan results to a checklist document and returns the
// updated document with the number of findings set from the scan.
// isNewChecklist marks a checklist seeded from a blank template, whose asset
// block is filled in from the scan.
func Merge(results *models.ScanResultSet, checklistXML string, isNewChecklist bool) (string, int, error) {
	c, err := ckl.Parse(checklistXML)
	if err != nil {
		return "", 0, err
	}
	updated := Apply(c, results, isNewChecklist)
	out, err := ckl.Marshal(c)
	if err != nil {
		return "", 0, err
	}
	return out, updated, nil
}

// Apply merges results into c in place and returns the number of findings
// whose status was set from the scan.
func Apply(c *models.Checklist, results *models.ScanResultSet, isNewChecklist bool) int {
	if results == nil {
		return 0
	}

	setIfPresent(&c.Asset.HostName, results.HostName)
	setIfPresent(&c.Asset.HostIP, results.IPAddresses)
	setIfPresent(&c.Asset.HostMAC, results.MACAddresses)
	setIfPresent(&c.Asset.HostFQDN, results.FQDN)

	if isNewChecklist {
		if c.Asset.Role == "" {
			c.Asset.Role = defaultRole
		}
		if c.Asset.AssetType == "" {
			c.Asset.AssetType = defaultAssetType
		}
		c.Asset.TargetComment = provenance(results)
	}

	byVersion := results.ResultsByRuleVersion()
	updated := 0
	for i := range c.Findings {
		f := &c.Findings[i]
		r, ok := byVersion[f.RuleVersion()]
		if !ok {
			continue
		}
		status, ok := r.Status()
		if !ok {
			continue
		}
		f.Status = status
		f.FindingDetails = FindingNote(results, r)
		updated++
	}
	return updated
}

// FindingNote is the text written to FINDING_DETAILS for a scanned rule
func FindingNote(results *models.ScanResultSet, r models.RuleResult) string {
	return fmt.Sprintf("Tool: %s\nTime: %s\nResult: %s", toolName(results), results.ScanTime, strings.TrimSpace(r.Result))
}

func provenance(results *models.ScanResultSet) string {
	note := "Imported from " + toolName(results)
	if results.ScanTime != "" {
		note += " scan at " + results.ScanTime
	}
	return note
}

func toolName(results *models.ScanResultSet) string {
	if results.Tool != "" {
		return results.Tool
	}
	return defaultTool
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
