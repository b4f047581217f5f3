package policy

import (
	"regexp"

	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
)

// Relation is one of the three name-to-name relations the config schema
// supports (spec.md §6).
type Relation int

const (
	RelationIsPrefixOf Relation = iota
	RelationEqual
	RelationIsStrictPrefixOf
)

func (r Relation) holds(a, b name.Name) bool {
	switch r {
	case RelationEqual:
		return a.Equal(b)
	case RelationIsStrictPrefixOf:
		return a.IsPrefixOf(b) && !a.Equal(b)
	default: // RelationIsPrefixOf
		return a.IsPrefixOf(b)
	}
}

// Filter matches a packet's name, either by exact name relation or by
// regular expression against its string form (spec.md §6 filter block).
type Filter struct {
	// Exactly one of Regex or (NameLiteral set with Relation) is used.
	Regex *regexp.Regexp

	NameLiteral name.Name
	Relation    Relation
	UseRegex    bool
}

// Match reports whether n satisfies this filter.
func (f Filter) Match(n name.Name) bool {
	if f.UseRegex {
		return f.Regex != nil && f.Regex.MatchString(n.String())
	}
	return f.Relation.holds(f.NameLiteral, n)
}

// HyperRelation binds a KeyLocator name to the signed packet's name via
// two regex-extracted substrings and a relation between them (spec.md
// §6: k-regex/k-expand against the KeyLocator, p-regex/p-expand against
// the packet name, h-relation between the two expansions).
type HyperRelation struct {
	KRegex  *regexp.Regexp
	KExpand string
	HRelat  Relation
	PRegex  *regexp.Regexp
	PExpand string
}

// Check reports whether keyLocatorName may legitimately sign pktName
// under this hyper-relation.
func (h HyperRelation) Check(keyLocatorName, pktName name.Name) bool {
	k := expand(h.KRegex, h.KExpand, keyLocatorName.String())
	p := expand(h.PRegex, h.PExpand, pktName.String())
	if k == "" || p == "" {
		return false
	}
	return h.HRelat.holds(name.Parse(k), name.Parse(p))
}

func expand(re *regexp.Regexp, tmpl, s string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return ""
	}
	return string(re.ExpandString(nil, tmpl, s, m))
}

// Checker is the rule's cryptographic/key-locator-binding predicate.
type Checker struct {
	SigType    packet.SignatureType
	HasSigType bool
	KeyLocator HyperRelation
}

// Rule pairs a filter with a checker, evaluated in declaration order
// (spec.md §6).
type Rule struct {
	ID      string
	ForData bool
	Filter  Filter
	Checker Checker
}

// Config is the rule-driven ValidationPolicy variant (spec.md §4.6). It
// must be a terminal policy: it never delegates to an inner policy, only
// to a bypass short-circuit for namespaces rooted at a "type any" trust
// anchor.
type Config struct {
	base
	rules           []Rule
	bypassPrefixes  []name.Name
	decodeInterest  SignedInterestDecoder
}

// NewConfig constructs a Config policy from an ordered rule list and the
// set of bypass (trust-anchor type=any) namespace prefixes.
func NewConfig(rules []Rule, bypassPrefixes []name.Name, decodeInterest SignedInterestDecoder) *Config {
	p := &Config{rules: rules, bypassPrefixes: bypassPrefixes, decodeInterest: decodeInterest}
	p.self = p
	return p
}

func (p *Config) isBypassed(n name.Name) bool {
	for _, prefix := range p.bypassPrefixes {
		if prefix.IsPrefixOf(n) {
			return true
		}
	}
	return false
}

func (p *Config) matchRule(n name.Name, forData bool) *Rule {
	for i := range p.rules {
		r := &p.rules[i]
		if r.ForData != forData {
			continue
		}
		if r.Filter.Match(n) {
			return r
		}
	}
	return nil
}

func (p *Config) evaluate(n name.Name, forData bool, keyLocator packet.KeyLocator, sigType packet.SignatureType, st *state.State, continuation Continuation) {
	if p.isBypassed(n) {
		continuation(nil, st)
		return
	}
	rule := p.matchRule(n, forData)
	if rule == nil {
		st.Fail(sec.New(sec.CodePolicyError, "no rule matches "+n.String()))
		return
	}
	if keyLocator.Type != packet.KeyLocatorTypeKeyName {
		st.Fail(sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not of type KEYNAME"))
		return
	}
	if rule.Checker.HasSigType && rule.Checker.SigType != sigType {
		st.Fail(sec.New(sec.CodePolicyError, "signature type does not match rule "+rule.ID))
		return
	}
	if !rule.Checker.KeyLocator.Check(keyLocator.Name, n) {
		st.Fail(sec.New(sec.CodePolicyError, "key locator does not satisfy rule "+rule.ID))
		return
	}
	continuation(&state.Request{Interest: packet.Interest{Name: keyLocator.Name, CanBePrefix: true, MustBeFresh: true}, RetriesLeft: -1}, st)
}

func (p *Config) CheckPolicyData(d packet.Data, st *state.State, continuation Continuation) {
	p.evaluate(d.Name, true, d.Signature.Info.KeyLocator, d.Signature.Info.Type, st, continuation)
}

func (p *Config) CheckPolicyInterest(i packet.Interest, st *state.State, continuation Continuation) {
	info, _, serr := decodeSignedInterest(i, p.decodeInterest)
	if serr != nil {
		st.Fail(serr)
		return
	}
	p.evaluate(i.Name, false, info.KeyLocator, info.Type, st, continuation)
}
