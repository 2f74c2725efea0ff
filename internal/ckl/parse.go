// Package ckl reads and writes STIG checklist (CKL) documents.
package ckl

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"stigwatch/internal/domain/models"
)

// document mirrors the CKL layout. Sections are pointers so a document that
// lacks one of them can be told apart from one where it is empty.
type document struct {
	XMLName xml.Name
	Asset   *models.Asset `xml:"ASSET"`
	STIGs   *stigsSection `xml:"STIGS"`
}

type stigsSection struct {
	XMLName xml.Name      `xml:"STIGS"`
	ISTIG   *istigSection `xml:"iSTIG"`
}

type istigSection struct {
	StigInfo *stigInfo        `xml:"STIG_INFO"`
	Vulns    []models.Finding `xml:"VULN"`
}

type stigInfo struct {
	Items []models.BenchmarkInfoItem `xml:"SI_DATA"`
}

// Parse decodes a raw checklist document.
//
// Parse never fails on well-formed XML: a document that lacks the ASSET,
// STIGS/iSTIG or STIG_INFO sections is junk and yields an empty checklist.
// Unknown elements are ignored. The returned error is reserved for input
// the XML decoder rejects outright.
func Parse(raw string) (*models.Checklist, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.ReplaceAll(raw, "\t", "")

	var doc document
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.Checklist{}, nil
		}
		return nil, fmt.Errorf("failed to decode checklist: %w", err)
	}

	if doc.Asset == nil || doc.STIGs == nil || doc.STIGs.ISTIG == nil || doc.STIGs.ISTIG.StigInfo == nil {
		return &models.Checklist{}, nil
	}

	istig := doc.STIGs.ISTIG
	findings := istig.Vulns
	for i := range findings {
		f := &findings[i]
		f.Status = models.ParseStatus(string(f.Status))
		for j := range f.Attributes {
			f.Attributes[j].Name = strings.TrimSpace(f.Attributes[j].Name)
		}
	}

	return &models.Checklist{
		Asset:         *doc.Asset,
		BenchmarkInfo: istig.StigInfo.Items,
		Findings:      findings,
	}, nil
}

// charsetReader lets exports declaring a legacy encoding (windows-1252,
// ISO-8859-1, ...) through the decoder.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
