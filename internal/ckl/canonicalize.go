package ckl

import (
	"strings"
	"unicode"

	"stigwatch/internal/domain/models"
)

// CanonicalScalars is the fixed order of single-valued STIG_DATA fields.
// Every canonical finding carries all of them, empty when unknown.
var CanonicalScalars = []string{
	models.AttrVulnNum,
	models.AttrSeverity,
	models.AttrGroupTitle,
	models.AttrRuleID,
	models.AttrRuleVer,
	models.AttrRuleTitle,
	models.AttrVulnDiscuss,
	models.AttrIAControls,
	models.AttrCheckContent,
	models.AttrFixText,
	models.AttrFalsePositives,
	models.AttrFalseNegatives,
	models.AttrDocumentable,
	models.AttrMitigations,
	models.AttrPotentialImpact,
	models.AttrThirdPartyTools,
	models.AttrMitigationControl,
	models.AttrResponsibility,
	models.AttrSecurityOverrideGuidance,
	models.AttrCheckContentRef,
	models.AttrWeight,
	models.AttrClass,
	models.AttrSTIGRef,
	models.AttrTargetKey,
}

var singleValued = func() map[string]bool {
	m := make(map[string]bool, len(CanonicalScalars)+1)
	for _, name := range CanonicalScalars {
		m[name] = true
	}
	m[models.AttrSTIGUUID] = true
	return m
}()

// Canonicalize rewrites a checklist whose STIG_DATA pairs are out of order
// or carry several CCIs glued into one value. Input that is already
// canonical, has no findings or cannot be matched is returned unchanged, so
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) (string, error) {
	c, err := Parse(raw)
	if err != nil {
		return "", err
	}

	first := -1
	for i := range c.Findings {
		if c.Findings[i].IsWellFormed() {
			first = i
			break
		}
	}
	if first < 0 {
		return raw, nil
	}

	if IsCanonical(c.Findings[first].Attributes) && !hasGluedCCI(c.Findings) {
		return raw, nil
	}

	for i := range c.Findings {
		f := &c.Findings[i]
		if f.IsWellFormed() {
			f.Attributes = CanonicalAttributes(f.Attributes)
		} else {
			f.Attributes = splitCCI(f.Attributes)
		}
	}

	return Render(c)
}

// CanonicalAttributes rebuilds an attribute list in canonical order: the
// scalar fields, STIG_UUID when present, any fields this package does not
// know about (and repeated scalars) in their original order, the LEGACY_ID
// pairs, then one CCI_REF pair per reference.
func CanonicalAttributes(attrs models.Attributes) models.Attributes {
	out := make(models.Attributes, 0, len(attrs)+len(CanonicalScalars))
	for _, name := range CanonicalScalars {
		out = append(out, models.Attribute{Name: name, Value: attrs.Value(name)})
	}
	if attrs.Count(models.AttrSTIGUUID) > 0 {
		out = append(out, models.Attribute{Name: models.AttrSTIGUUID, Value: attrs.Value(models.AttrSTIGUUID)})
	}

	seen := make(map[string]bool)
	for _, a := range attrs {
		switch {
		case a.Name == models.AttrLegacyID || a.Name == models.AttrCCIRef:
			continue
		case singleValued[a.Name] && !seen[a.Name]:
			seen[a.Name] = true
			continue
		}
		out = append(out, a)
	}

	for _, v := range attrs.Values(models.AttrLegacyID) {
		out = append(out, models.Attribute{Name: models.AttrLegacyID, Value: v})
	}
	for _, v := range attrs.Values(models.AttrCCIRef) {
		for _, ref := range strings.Fields(v) {
			out = append(out, models.Attribute{Name: models.AttrCCIRef, Value: ref})
		}
	}
	return out
}

// IsCanonical reports whether attrs already has the shape
// CanonicalAttributes would give it.
func IsCanonical(attrs models.Attributes) bool {
	want := CanonicalAttributes(attrs)
	if len(want) != len(attrs) {
		return false
	}
	for i := range want {
		if want[i].Name != attrs[i].Name {
			return false
		}
	}
	return true
}

func hasGluedCCI(findings []models.Finding) bool {
	for i := range findings {
		for _, v := range findings[i].Attributes.Values(models.AttrCCIRef) {
			if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
				return true
			}
		}
	}
	return false
}

// splitCCI splits glued CCI values in place without reordering anything
// else. Used for findings too malformed to rebuild.
func splitCCI(attrs models.Attributes) models.Attributes {
	out := make(models.Attributes, 0, len(attrs))
	for _, a := range attrs {
		if a.Name != models.AttrCCIRef || strings.IndexFunc(a.Value, unicode.IsSpace) < 0 {
			out = append(out, a)
			continue
		}
		for _, ref := range strings.Fields(a.Value) {
			out = append(out, models.Attribute{Name: models.AttrCCIRef, Value: ref})
		}
	}
	return out
}
