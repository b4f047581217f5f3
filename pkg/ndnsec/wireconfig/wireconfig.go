// Package wireconfig parses the INFO-style validator configuration
// schema from spec.md §6 (rules + trust-anchor declarations) using HCL,
// the configuration language the teacher's own dependency graph already
// carries (github.com/hashicorp/hcl). Parse decodes HCL text straight
// into typed Go structs with hcl.Decode; ParseMap decodes already-built
// maps into the same structs via github.com/mitchellh/mapstructure — see
// DESIGN.md.
package wireconfig

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/mitchellh/mapstructure"

	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/policy"
)

// rawRoot mirrors the HCL document shape before type-level decoding.
type rawRoot struct {
	Validator []rawValidator `hcl:"validator"`
}

type rawValidator struct {
	Rule        []rawRule        `hcl:"rule"`
	TrustAnchor []rawTrustAnchor `hcl:"trust-anchor"`
}

type rawRule struct {
	ID      string       `hcl:"id"`
	For     string       `hcl:"for"`
	Filter  rawFilter    `hcl:"filter"`
	Checker rawChecker   `hcl:"checker"`
}

type rawFilter struct {
	Type     string `hcl:"type"`
	Name     string `hcl:"name"`
	Regex    string `hcl:"regex"`
	Relation string `hcl:"relation"`
}

type rawChecker struct {
	Type       string         `hcl:"type"`
	SigType    string         `hcl:"sig-type"`
	KeyLocator rawKeyLocator  `hcl:"key-locator"`
}

type rawKeyLocator struct {
	Type          string            `hcl:"type"`
	HyperRelation rawHyperRelation  `hcl:"hyper-relation"`
}

type rawHyperRelation struct {
	KRegex   string `hcl:"k-regex"`
	KExpand  string `hcl:"k-expand"`
	HRelation string `hcl:"h-relation"`
	PRegex   string `hcl:"p-regex"`
	PExpand  string `hcl:"p-expand"`
}

type rawTrustAnchor struct {
	Type         string `hcl:"type"`
	FileName     string `hcl:"file-name"`
	Base64String string `hcl:"base64-string"`
	Dir          string `hcl:"dir"`
	Refresh      string `hcl:"refresh"`
}

// AnchorSpec is one decoded trust-anchor declaration.
type AnchorSpec struct {
	Bypass       bool // type=any
	FileName     string
	Base64String string
	Dir          string
	IsDirectory  bool
	Refresh      time.Duration
}

// Document is the fully decoded configuration: an ordered rule list
// ready for policy.NewConfig, plus the trust-anchor declarations it
// implies (both static-file/base64 and dynamic file/dir anchors).
type Document struct {
	Rules   []policy.Rule
	Anchors []AnchorSpec
}

// Parse decodes an INFO-style configuration body into a Document.
func Parse(body []byte) (*Document, error) {
	var raw rawRoot
	if err := hcl.Decode(&raw, string(body)); err != nil {
		return nil, fmt.Errorf("decoding validator config: %w", err)
	}
	return build(raw)
}

// ParseMap decodes a configuration already materialized as nested maps
// (e.g. produced by a templating layer upstream of this package) instead
// of raw HCL source text.
func ParseMap(m map[string]interface{}) (*Document, error) {
	raw, err := decodeViaMapstructure(m)
	if err != nil {
		return nil, err
	}
	return build(*raw)
}

func build(raw rawRoot) (*Document, error) {
	if len(raw.Validator) != 1 {
		return nil, fmt.Errorf("expected exactly one validator block, got %d", len(raw.Validator))
	}
	v := raw.Validator[0]

	doc := &Document{}
	for _, r := range v.Rule {
		rule, err := decodeRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		doc.Rules = append(doc.Rules, rule)
	}
	for _, a := range v.TrustAnchor {
		spec, err := decodeAnchor(a)
		if err != nil {
			return nil, fmt.Errorf("trust-anchor: %w", err)
		}
		doc.Anchors = append(doc.Anchors, spec)
	}
	return doc, nil
}

func decodeRule(r rawRule) (policy.Rule, error) {
	var forData bool
	switch r.For {
	case "data":
		forData = true
	case "interest":
		forData = false
	default:
		return policy.Rule{}, fmt.Errorf("unknown for=%q", r.For)
	}

	filter, err := decodeFilter(r.Filter)
	if err != nil {
		return policy.Rule{}, err
	}
	checker, err := decodeChecker(r.Checker)
	if err != nil {
		return policy.Rule{}, err
	}

	return policy.Rule{ID: r.ID, ForData: forData, Filter: filter, Checker: checker}, nil
}

func decodeFilter(f rawFilter) (policy.Filter, error) {
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return policy.Filter{}, fmt.Errorf("compiling filter regex: %w", err)
		}
		return policy.Filter{UseRegex: true, Regex: re}, nil
	}
	rel, err := decodeRelation(f.Relation)
	if err != nil {
		return policy.Filter{}, err
	}
	return policy.Filter{NameLiteral: name.Parse(f.Name), Relation: rel}, nil
}

func decodeChecker(c rawChecker) (policy.Checker, error) {
	checker := policy.Checker{}
	if c.SigType != "" {
		st, err := decodeSigType(c.SigType)
		if err != nil {
			return policy.Checker{}, err
		}
		checker.SigType = st
		checker.HasSigType = true
	}

	hr := c.KeyLocator.HyperRelation
	kRe, err := regexp.Compile(hr.KRegex)
	if err != nil {
		return policy.Checker{}, fmt.Errorf("compiling k-regex: %w", err)
	}
	pRe, err := regexp.Compile(hr.PRegex)
	if err != nil {
		return policy.Checker{}, fmt.Errorf("compiling p-regex: %w", err)
	}
	hrel, err := decodeRelation(hr.HRelation)
	if err != nil {
		return policy.Checker{}, err
	}
	checker.KeyLocator = policy.HyperRelation{
		KRegex: kRe, KExpand: hr.KExpand,
		HRelat: hrel,
		PRegex: pRe, PExpand: hr.PExpand,
	}
	return checker, nil
}

func decodeRelation(s string) (policy.Relation, error) {
	switch s {
	case "is-prefix-of":
		return policy.RelationIsPrefixOf, nil
	case "equal":
		return policy.RelationEqual, nil
	case "is-strict-prefix-of":
		return policy.RelationIsStrictPrefixOf, nil
	default:
		return 0, fmt.Errorf("unknown relation %q", s)
	}
}

func decodeSigType(s string) (packet.SignatureType, error) {
	switch s {
	case "rsa-sha256":
		return packet.SignatureTypeSHA256WithRSA, nil
	case "ecdsa-sha256":
		return packet.SignatureTypeSHA256WithECDSA, nil
	default:
		return 0, fmt.Errorf("unknown sig-type %q", s)
	}
}

func decodeAnchor(a rawTrustAnchor) (AnchorSpec, error) {
	spec := AnchorSpec{
		FileName:     a.FileName,
		Base64String: a.Base64String,
		Dir:          a.Dir,
	}
	switch a.Type {
	case "any":
		spec.Bypass = true
	case "file", "base64":
		// nothing further
	case "dir":
		spec.IsDirectory = true
	default:
		return AnchorSpec{}, fmt.Errorf("unknown trust-anchor type %q", a.Type)
	}
	refresh, err := parseRefresh(a.Refresh)
	if err != nil {
		return AnchorSpec{}, err
	}
	spec.Refresh = refresh
	return spec, nil
}

// parseRefresh decodes the "<digits>(s|m|h)?" grammar from spec.md §6.
// Empty input or an explicit 0 is coerced to one hour.
func parseRefresh(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Hour, nil
	}
	unit := time.Second
	digits := s
	switch s[len(s)-1] {
	case 's':
		unit, digits = time.Second, s[:len(s)-1]
	case 'm':
		unit, digits = time.Minute, s[:len(s)-1]
	case 'h':
		unit, digits = time.Hour, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed refresh duration %q: %w", s, err)
	}
	if n == 0 {
		return time.Hour, nil
	}
	return time.Duration(n) * unit, nil
}

// decodeViaMapstructure is kept for configuration fragments that arrive
// already as map[string]interface{} (e.g. from a higher-level templating
// layer) rather than raw HCL bytes, reusing the same rawRoot shape.
func decodeViaMapstructure(m map[string]interface{}) (*rawRoot, error) {
	var raw rawRoot
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		TagName:          "hcl",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decoding config map: %w", err)
	}
	return &raw, nil
}
