package models

import (
	"strings"
)

// Status represents the review status of a single finding
type Status string

const (
	StatusOpen          Status = "Open"
	StatusNotAFinding   Status = "NotAFinding"
	StatusNotApplicable Status = "Not_Applicable"
	StatusNotReviewed   Status = "Not_Reviewed"
)

// ParseStatus converts the status spellings seen in the wild into a Status.
// Anything unrecognized is treated as not reviewed.
func ParseStatus(s string) Status {
	key := strings.ToLower(strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.TrimSpace(s)))
	switch key {
	case "open":
		return StatusOpen
	case "notafinding", "nf":
		return StatusNotAFinding
	case "notapplicable", "na":
		return StatusNotApplicable
	default:
		return StatusNotReviewed
	}
}

// String returns the wire form of the status
func (s Status) String() string {
	return string(s)
}

// Well-known VULN_ATTRIBUTE names
const (
	AttrVulnNum                  = "Vuln_Num"
	AttrSeverity                 = "Severity"
	AttrGroupTitle               = "Group_Title"
	AttrRuleID                   = "Rule_ID"
	AttrRuleVer                  = "Rule_Ver"
	AttrRuleTitle                = "Rule_Title"
	AttrVulnDiscuss              = "Vuln_Discuss"
	AttrIAControls               = "IA_Controls"
	AttrCheckContent             = "Check_Content"
	AttrFixText                  = "Fix_Text"
	AttrFalsePositives           = "False_Positives"
	AttrFalseNegatives           = "False_Negatives"
	AttrDocumentable             = "Documentable"
	AttrMitigations              = "Mitigations"
	AttrPotentialImpact          = "Potential_Impact"
	AttrThirdPartyTools          = "Third_Party_Tools"
	AttrMitigationControl        = "Mitigation_Control"
	AttrResponsibility           = "Responsibility"
	AttrSecurityOverrideGuidance = "Security_Override_Guidance"
	AttrCheckContentRef          = "Check_Content_Ref"
	AttrWeight                   = "Weight"
	AttrClass                    = "Class"
	AttrSTIGRef                  = "STIGRef"
	AttrTargetKey                = "TargetKey"
	AttrSTIGUUID                 = "STIG_UUID"
	AttrLegacyID                 = "LEGACY_ID"
	AttrCCIRef                   = "CCI_REF"
)

// Asset identifies the host a checklist was recorded against.
// Every field is optional; an empty value means unknown.
type Asset struct {
	Role          string `xml:"ROLE" json:"role"`
	AssetType     string `xml:"ASSET_TYPE" json:"asset_type"`
	Marking       string `xml:"MARKING" json:"marking,omitempty"`
	HostName      string `xml:"HOST_NAME" json:"host_name"`
	HostIP        string `xml:"HOST_IP" json:"host_ip"`
	HostMAC       string `xml:"HOST_MAC" json:"host_mac"`
	HostFQDN      string `xml:"HOST_FQDN" json:"host_fqdn"`
	TargetComment string `xml:"TARGET_COMMENT" json:"target_comment,omitempty"`
	TechArea      string `xml:"TECH_AREA" json:"tech_area"`
	TargetKey     string `xml:"TARGET_KEY" json:"target_key,omitempty"`
	WebOrDatabase string `xml:"WEB_OR_DATABASE" json:"web_or_database"`
	WebDBSite     string `xml:"WEB_DB_SITE" json:"web_db_site,omitempty"`
	WebDBInstance string `xml:"WEB_DB_INSTANCE" json:"web_db_instance,omitempty"`
}

// BenchmarkInfoItem is one SI_DATA name/value pair of the STIG_INFO block
type BenchmarkInfoItem struct {
	Name string `xml:"SID_NAME" json:"name"`
	Data string `xml:"SID_DATA" json:"data"`
}

// Attribute is one STIG_DATA pair of a finding
type Attribute struct {
	Name  string `xml:"VULN_ATTRIBUTE" json:"name"`
	Value string `xml:"ATTRIBUTE_DATA" json:"value"`
}

// Attributes is an ordered multi-map. Names may repeat (LEGACY_ID, CCI_REF)
// and both order and multiplicity are preserved.
type Attributes []Attribute

// Values returns every value stored under name, in order
func (a Attributes) Values(name string) []string {
	var out []string
	for _, attr := range a {
		if attr.Name == name {
			out = append(out, attr.Value)
		}
	}
	return out
}

// Value returns the first value stored under name
func (a Attributes) Value(name string) string {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

// Count returns how many pairs carry name
func (a Attributes) Count(name string) int {
	n := 0
	for _, attr := range a {
		if attr.Name == name {
			n++
		}
	}
	return n
}

// Names returns the attribute names in order
func (a Attributes) Names() []string {
	out := make([]string, len(a))
	for i, attr := range a {
		out[i] = attr.Name
	}
	return out
}

// Finding is the evaluation of one benchmark rule within a checklist
type Finding struct {
	Attributes            Attributes `xml:"STIG_DATA" json:"attributes"`
	Status                Status     `xml:"STATUS" json:"status"`
	FindingDetails        string     `xml:"FINDING_DETAILS" json:"finding_details"`
	Comments              string     `xml:"COMMENTS" json:"comments"`
	SeverityOverride      string     `xml:"SEVERITY_OVERRIDE" json:"severity_override"`
	SeverityJustification string     `xml:"SEVERITY_JUSTIFICATION" json:"severity_justification"`
}

// RequiredAttributes must each appear exactly once for a finding to be usable
var RequiredAttributes = []string{AttrVulnNum, AttrSeverity, AttrRuleVer}

// IsWellFormed reports whether the finding carries exactly one of each
// required attribute.
func (f *Finding) IsWellFormed() bool {
	for _, name := range RequiredAttributes {
		if f.Attributes.Count(name) != 1 {
			return false
		}
	}
	return true
}

// VulnID returns the Vuln_Num attribute
func (f *Finding) VulnID() string { return f.Attributes.Value(AttrVulnNum) }

// RuleVersion returns the Rule_Ver attribute (the STIG ID of the rule)
func (f *Finding) RuleVersion() string { return f.Attributes.Value(AttrRuleVer) }

// Severity returns the Severity attribute
func (f *Finding) Severity() string { return f.Attributes.Value(AttrSeverity) }

// CCIRefs returns the catalog references of the finding. Values that were
// exported with several references glued together are split on whitespace.
func (f *Finding) CCIRefs() []string {
	var out []string
	for _, v := range f.Attributes.Values(AttrCCIRef) {
		out = append(out, strings.Fields(v)...)
	}
	return out
}

// Checklist is one asset's findings against one benchmark
type Checklist struct {
	Asset         Asset               `json:"asset"`
	BenchmarkInfo []BenchmarkInfoItem `json:"benchmark_info"`
	Findings      []Finding           `json:"findings"`
}

// BenchmarkValue returns the STIG_INFO value stored under name
func (c *Checklist) BenchmarkValue(name string) string {
	for _, item := range c.BenchmarkInfo {
		if item.Name == name {
			return item.Data
		}
	}
	return ""
}

// BenchmarkTitle returns the benchmark title from STIG_INFO
func (c *Checklist) BenchmarkTitle() string {
	return c.BenchmarkValue("title")
}

// DisplayTitle builds a human readable title such as
// "Windows 10 STIG V2 Release: 7 Benchmark Date: 07 Jun 2023".
func (c *Checklist) DisplayTitle() string {
	title := c.BenchmarkTitle()
	if title == "" {
		return ""
	}
	if v := c.BenchmarkValue("version"); v != "" {
		title += " V" + v
	}
	if r := c.BenchmarkValue("releaseinfo"); r != "" {
		title += " " + r
	}
	return title
}

// IsEmpty reports whether the checklist carries no usable content, which is
// what parsing a junk document yields.
func (c *Checklist) IsEmpty() bool {
	return c.Asset == (Asset{}) && len(c.BenchmarkInfo) == 0 && len(c.Findings) == 0
}
