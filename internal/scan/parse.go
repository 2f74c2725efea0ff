// Package scan reads XCCDF scan results and merges them into checklists.
package scan

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"stigwatch/internal/domain/models"
)

// dialect binds a namespace prefix to its field extraction. Documents are
// read with RawToken so prefixes are compared literally.
type dialect struct {
	kind   models.ScanDialect
	prefix string
}

// probes are checked in order; the first closing tag found selects the
// dialect.
var probes = []struct {
	signature string
	dialect   dialect
}{
	{"</cdf:Benchmark>", dialect{models.ScanDialectCDF, "cdf"}},
	{"</xccdf:Benchmark>", dialect{models.ScanDialectXCCDF, "xccdf"}},
	{"</cdf:TestResult>", dialect{models.ScanDialectCDF, "cdf"}},
	{"</xccdf:TestResult>", dialect{models.ScanDialectXCCDF, "xccdf"}},
	{"</Benchmark>", dialect{models.ScanDialectDefault, ""}},
	{"</TestResult>", dialect{models.ScanDialectDefault, ""}},
}

// DetectDialect returns the dialect of a scan result document without
// parsing it.
func DetectDialect(raw string) models.ScanDialect {
	if d, ok := detect(raw); ok {
		return d.kind
	}
	return models.ScanDialectUnknown
}

func detect(raw string) (dialect, bool) {
	for _, p := range probes {
		if strings.Contains(raw, p.signature) {
			return p.dialect, true
		}
	}
	return dialect{}, false
}

// Parse extracts the benchmark title, target identity and rule outcomes
// from a scan result document. A document of unknown dialect or without a
// title yields an empty set: it cannot be matched to a template, which is
// not an error.
func Parse(raw string) (*models.ScanResultSet, error) {
	d, ok := detect(raw)
	if !ok {
		return &models.ScanResultSet{}, nil
	}
	set, err := d.extract(raw)
	if err != nil {
		return nil, err
	}
	if set.Title == "" {
		return &models.ScanResultSet{Dialect: d.kind}, nil
	}
	return set, nil
}

func (d dialect) owns(name xml.Name) bool {
	return name.Space == d.prefix
}

type pendingResult struct {
	ruleID  string
	version string
	result  string
}

func (d dialect) extract(raw string) (*models.ScanResultSet, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.CharsetReader = charsetReader

	set := &models.ScanResultSet{Dialect: d.kind}

	var (
		stack        []xml.Name
		text         strings.Builder
		benchTitle   string
		anyTitle     string
		currentRule  string
		currentFact  string
		current      *pendingResult
		pending      []pendingResult
		ruleVersions = make(map[string]string)
		hosts        = newValueSet(isLoopbackHost)
		addresses    = newValueSet(isLoopbackIP)
		fqdns        = newValueSet(isLoopbackHost)
		macs         = newValueSet(isNullMAC)
	)

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read scan results: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
			text.Reset()
			if !d.owns(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "Rule":
				currentRule = attr(t, "id")
			case "TestResult":
				set.Tool = attr(t, "test-system")
				set.ScanTime = firstNonEmpty(attr(t, "end-time"), attr(t, "start-time"))
			case "rule-result":
				current = &pendingResult{ruleID: attr(t, "idref"), version: attr(t, "version")}
				if set.ScanTime == "" {
					set.ScanTime = attr(t, "time")
				}
			case "fact":
				currentFact = attr(t, "name")
			}

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			text.Reset()
			var parent xml.Name
			if len(stack) >= 2 {
				parent = stack[len(stack)-2]
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if !d.owns(t.Name) {
				continue
			}

			switch t.Name.Local {
			case "title":
				if anyTitle == "" {
					anyTitle = value
				}
				if benchTitle == "" && d.owns(parent) && parent.Local == "Benchmark" {
					benchTitle = value
				}
			case "version":
				switch {
				case current != nil && parent.Local == "rule-result":
					if current.version == "" {
						current.version = value
					}
				case currentRule != "" && parent.Local == "Rule":
					ruleVersions[currentRule] = value
				}
			case "Rule":
				currentRule = ""
			case "target":
				hosts.add(value)
			case "target-address":
				addresses.add(value)
			case "fact":
				switch factKind(currentFact) {
				case "host_name":
					hosts.add(value)
				case "fqdn":
					fqdns.add(value)
				case "mac":
					macs.add(value)
				case "ipv4", "ipv6":
					addresses.add(value)
				}
				currentFact = ""
			case "result":
				if current != nil {
					current.result = value
				}
			case "rule-result":
				if current != nil {
					pending = append(pending, *current)
					current = nil
				}
			}
		}
	}

	set.Title = firstNonEmpty(benchTitle, anyTitle)
	set.HostName = hosts.String()
	set.IPAddresses = addresses.String()
	set.FQDN = fqdns.String()
	set.MACAddresses = macs.String()

	for _, p := range pending {
		version := p.version
		if version == "" {
			version = ruleVersions[p.ruleID]
		}
		if version == "" {
			continue
		}
		set.Results = append(set.Results, models.RuleResult{
			RuleID:      p.ruleID,
			RuleVersion: version,
			Result:      p.result,
		})
	}

	return set, nil
}

// factKind returns the trailing component of a SCAP fact name such as
// "urn:scap:fact:asset:identifier:fqdn".
func factKind(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// valueSet keeps distinct, non-discarded values in first-seen order
type valueSet struct {
	discard func(string) bool
	seen    map[string]bool
	values  []string
}

func newValueSet(discard func(string) bool) *valueSet {
	return &valueSet{discard: discard, seen: make(map[string]bool)}
}

func (s *valueSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" || s.discard(v) {
		return
	}
	key := strings.ToLower(v)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.values = append(s.values, v)
}

func (s *valueSet) String() string {
	return strings.Join(s.values, ", ")
}

func isLoopbackIP(v string) bool {
	ip := net.ParseIP(v)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func isLoopbackHost(v string) bool {
	switch strings.ToLower(v) {
	case "localhost", "localhost.localdomain":
		return true
	}
	return isLoopbackIP(v)
}

func isNullMAC(v string) bool {
	hw, err := net.ParseMAC(v)
	if err != nil {
		return false
	}
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return true
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
