package ckl

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"stigwatch/internal/domain/models"
)

const indent = "  "

// Marshal serializes the whole checklist with the generic XML encoder.
func Marshal(c *models.Checklist) (string, error) {
	asset := c.Asset
	doc := document{
		XMLName: xml.Name{Local: "CHECKLIST"},
		Asset:   &asset,
		STIGs:   stigsFor(c),
	}

	var b bytes.Buffer
	b.WriteString(xml.Header)
	enc := xml.NewEncoder(&b)
	enc.Indent("", indent)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode checklist: %w", err)
	}
	b.WriteString("\n")
	return b.String(), nil
}

// Render serializes the checklist with an explicitly written header around
// the encoder's STIGS section. The output of Render is what Canonicalize
// emits.
func Render(c *models.Checklist) (string, error) {
	var b bytes.Buffer
	if err := WriteHeader(&b, c.Asset); err != nil {
		return "", err
	}
	enc := xml.NewEncoder(&b)
	enc.Indent(indent, indent)
	if err := enc.Encode(stigsFor(c)); err != nil {
		return "", fmt.Errorf("failed to encode checklist findings: %w", err)
	}
	b.WriteString("\n</CHECKLIST>\n")
	return b.String(), nil
}

func stigsFor(c *models.Checklist) *stigsSection {
	return &stigsSection{
		ISTIG: &istigSection{
			StigInfo: &stigInfo{Items: c.BenchmarkInfo},
			Vulns:    c.Findings,
		},
	}
}

// assetFields lists the ASSET children in the order they are written
func assetFields(a models.Asset) [][2]string {
	return [][2]string{
		{"ROLE", a.Role},
		{"ASSET_TYPE", a.AssetType},
		{"MARKING", a.Marking},
		{"HOST_NAME", a.HostName},
		{"HOST_IP", a.HostIP},
		{"HOST_MAC", a.HostMAC},
		{"HOST_FQDN", a.HostFQDN},
		{"TARGET_COMMENT", a.TargetComment},
		{"TECH_AREA", a.TechArea},
		{"TARGET_KEY", a.TargetKey},
		{"WEB_OR_DATABASE", a.WebOrDatabase},
		{"WEB_DB_SITE", a.WebDBSite},
		{"WEB_DB_INSTANCE", a.WebDBInstance},
	}
}

// WriteHeader writes the XML declaration, the opening CHECKLIST tag and the
// ASSET block. Every byte of whitespace is fixed: one element per line,
// two-space indentation, values escaped, nothing else.
func WriteHeader(w io.Writer, asset models.Asset) error {
	hw := &headerWriter{w: w}
	hw.raw(xml.Header)
	hw.raw("<CHECKLIST>\n")
	hw.raw(indent + "<ASSET>\n")
	for _, field := range assetFields(asset) {
		hw.element(field[0], field[1])
	}
	hw.raw(indent + "</ASSET>\n")
	if hw.err != nil {
		return fmt.Errorf("failed to write checklist header: %w", hw.err)
	}
	return nil
}

type headerWriter struct {
	w   io.Writer
	err error
}

func (h *headerWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *headerWriter) element(name, value string) {
	h.raw(indent + indent + "<" + name + ">")
	if h.err == nil {
		h.err = xml.EscapeText(h.w, []byte(value))
	}
	h.raw("</" + name + ">\n")
}
