// Package name implements the hierarchical NDN name type used throughout
// the validator: an ordered sequence of opaque byte components, comparable
// and prefix-testable (spec.md §3, "Name" row).
//
// spec.md §2 lists a NameMatcher as an external collaborator, but no
// library in the retrieved corpus implements NDN-style hierarchical,
// byte-component names (the closest analogue, go-containerregistry's
// name.Reference, models container image references, a different and
// much narrower grammar) — see DESIGN.md for why this package is
// implemented directly against the standard library instead of an
// ecosystem dependency.
package name

import (
	"bytes"
	"strings"
)

// Component is a single opaque name element.
type Component []byte

func (c Component) Equal(o Component) bool { return bytes.Equal(c, o) }

func (c Component) String() string { return string(c) }

// Name is an ordered, immutable-by-convention sequence of components.
// Callers must not mutate a Name's backing slice after constructing it;
// all derived accessors return new slices or Names.
type Name struct {
	comps []Component
}

// New builds a Name from already-split components.
func New(comps ...Component) Name {
	out := make([]Component, len(comps))
	copy(out, comps)
	return Name{comps: out}
}

// Parse splits a "/"-delimited URI-style string into a Name. Leading and
// trailing slashes are ignored; empty components from "//" are dropped.
// This is a convenience constructor for tests and config files, not a
// TLV decoder (out of scope per spec.md §1).
func Parse(uri string) Name {
	parts := strings.Split(uri, "/")
	comps := make([]Component, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		comps = append(comps, Component(p))
	}
	return Name{comps: comps}
}

func (n Name) Size() int { return len(n.comps) }

// At returns the i-th component; negative i counts from the end, matching
// the spec's name[-1]/name[-2]/name[-3] notation.
func (n Name) At(i int) Component {
	if i < 0 {
		i += len(n.comps)
	}
	if i < 0 || i >= len(n.comps) {
		return nil
	}
	return n.comps[i]
}

// Prefix returns the first n.Size()+k components when k is negative (the
// spec's name.prefix(-4) notation), or the first k when k is non-negative.
func (n Name) Prefix(k int) Name {
	end := k
	if k < 0 {
		end = len(n.comps) + k
	}
	if end < 0 {
		end = 0
	}
	if end > len(n.comps) {
		end = len(n.comps)
	}
	out := make([]Component, end)
	copy(out, n.comps[:end])
	return Name{comps: out}
}

// Append returns a new Name with comps appended.
func (n Name) Append(comps ...Component) Name {
	out := make([]Component, len(n.comps)+len(comps))
	copy(out, n.comps)
	copy(out[len(n.comps):], comps)
	return Name{comps: out}
}

// Equal reports whether n and o have identical components.
func (n Name) Equal(o Name) bool {
	if len(n.comps) != len(o.comps) {
		return false
	}
	for i := range n.comps {
		if !n.comps[i].Equal(o.comps[i]) {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether n is a prefix of o (n.Size() <= o.Size() and
// every component of n matches the corresponding component of o).
func (n Name) IsPrefixOf(o Name) bool {
	if len(n.comps) > len(o.comps) {
		return false
	}
	for i := range n.comps {
		if !n.comps[i].Equal(o.comps[i]) {
			return false
		}
	}
	return true
}

// Compare implements the total order required for ordered-map "ceiling"
// lookups in CertificateCache and TrustAnchorContainer: lexicographic by
// component, with a shorter name that is a prefix of a longer one sorting
// first (NDN canonical name ordering).
func (n Name) Compare(o Name) int {
	for i := 0; i < len(n.comps) && i < len(o.comps); i++ {
		if c := bytes.Compare(n.comps[i], o.comps[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n.comps) < len(o.comps):
		return -1
	case len(n.comps) > len(o.comps):
		return 1
	default:
		return 0
	}
}

func (n Name) String() string {
	var b strings.Builder
	for _, c := range n.comps {
		b.WriteByte('/')
		b.Write(c)
	}
	if len(n.comps) == 0 {
		return "/"
	}
	return b.String()
}

// HasImplicitDigestSuffix reports whether n's last component looks like an
// implicit SHA-256 digest component (the NDN convention component type
// 0x01 TLV prefix is out of scope for this module since the TLV codec
// itself is external; this is a best-effort heuristic used only to decide
// whether to log the ceiling-lookup caveat called out in spec.md §4.2).
func (n Name) HasImplicitDigestSuffix() bool {
	if n.Size() == 0 {
		return false
	}
	last := n.At(-1)
	return len(last) == 32
}
