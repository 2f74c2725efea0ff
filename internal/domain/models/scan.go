package models

import "strings"

// ScanDialect identifies which XCCDF namespace prefix a scan result uses
type ScanDialect string

const (
	ScanDialectUnknown ScanDialect = ""
	ScanDialectCDF     ScanDialect = "cdf"
	ScanDialectXCCDF   ScanDialect = "xccdf"
	// ScanDialectDefault is an XCCDF document using the default namespace
	// (no prefix at all), as written by OpenSCAP.
	ScanDialectDefault ScanDialect = "default"
)

// Scan outcomes that map onto a finding status
const (
	ScanResultPass          = "pass"
	ScanResultFail          = "fail"
	ScanResultNotApplicable = "notapplicable"
)

// RuleResult is a single rule outcome from a scan
type RuleResult struct {
	RuleID      string `json:"rule_id,omitempty"`
	RuleVersion string `json:"rule_version"`
	Result      string `json:"result"`
}

// Status maps the scan outcome onto a finding status. ok is false for
// outcomes that must not touch the checklist (error, notchecked, ...).
func (r RuleResult) Status() (status Status, ok bool) {
	switch strings.ToLower(strings.TrimSpace(r.Result)) {
	case ScanResultFail:
		return StatusOpen, true
	case ScanResultPass:
		return StatusNotAFinding, true
	case ScanResultNotApplicable:
		return StatusNotApplicable, true
	default:
		return "", false
	}
}

// ScanResultSet is what a scan result document yields
type ScanResultSet struct {
	Dialect      ScanDialect  `json:"dialect"`
	Title        string       `json:"title"`
	HostName     string       `json:"host_name,omitempty"`
	IPAddresses  string       `json:"ip_addresses,omitempty"`
	FQDN         string       `json:"fqdn,omitempty"`
	MACAddresses string       `json:"mac_addresses,omitempty"`
	Tool         string       `json:"tool,omitempty"`
	ScanTime     string       `json:"scan_time,omitempty"`
	Results      []RuleResult `json:"results"`
}

// IsEmpty reports whether the set cannot be matched to a template
func (s *ScanResultSet) IsEmpty() bool {
	return s == nil || s.Title == ""
}

// ResultsByRuleVersion indexes the results by rule version. A later result
// for the same rule version replaces an earlier one.
func (s *ScanResultSet) ResultsByRuleVersion() map[string]RuleResult {
	out := make(map[string]RuleResult, len(s.Results))
	for _, r := range s.Results {
		if r.RuleVersion == "" {
			continue
		}
		out[r.RuleVersion] = r
	}
	return out
}
