// Package packet defines the minimal Data/Interest/Signature shapes the
// validator operates on. TLV encoding/decoding is explicitly out of scope
// (spec.md §1); these are the already-decoded, in-memory views a TLV
// codec would hand to this module.
package packet

import (
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/name"
)

// SignatureType identifies the signing algorithm, matching the wire
// values used by the NDN certificate format (spec.md §6).
type SignatureType int

const (
	SignatureTypeUnspecified SignatureType = iota
	SignatureTypeSHA256WithRSA
	SignatureTypeSHA256WithECDSA
)

// KeyLocatorType distinguishes the two ways a SignatureInfo may point at
// a signer; this module only ever acts on KEYNAME locators, but the type
// lets policies reject KEYDIGEST locators explicitly (spec.md §4.6).
type KeyLocatorType int

const (
	KeyLocatorTypeNone KeyLocatorType = iota
	KeyLocatorTypeKeyName
	KeyLocatorTypeKeyDigest
)

// KeyLocator names the signer of a packet.
type KeyLocator struct {
	Type KeyLocatorType
	Name name.Name
}

// ValidityPeriod bounds a certificate's validity, notBefore <= notAfter.
type ValidityPeriod struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// Contains reports whether t falls within [NotBefore, NotAfter].
func (v ValidityPeriod) Contains(t time.Time) bool {
	return !t.Before(v.NotBefore) && !t.After(v.NotAfter)
}

// SignatureInfo carries everything about a signature except the raw bytes.
type SignatureInfo struct {
	Type           SignatureType
	KeyLocator     KeyLocator
	ValidityPeriod *ValidityPeriod // only present on certificates
}

// Signature pairs a SignatureInfo with the signature bytes and the exact
// byte range they cover (the "signed portion" of the packet).
type Signature struct {
	Info         SignatureInfo
	Value        []byte
	SignedPortion []byte
}

// ContentType mirrors the MetaInfo ContentType field; only KEY matters to
// this module, the rest pass through opaquely.
type ContentType int

const (
	ContentTypeBlob ContentType = iota
	ContentTypeKey
	ContentTypeLink
	ContentTypeOther
)

// MetaInfo is the subset of Data MetaInfo the validator inspects.
type MetaInfo struct {
	ContentType      ContentType
	FreshnessPeriod  time.Duration
}

// Data is a decoded NDN Data packet.
type Data struct {
	Name      name.Name
	MetaInfo  MetaInfo
	Content   []byte
	Signature Signature
}

// Interest is a decoded NDN Interest packet. CanBePrefix/MustBeFresh are
// retained for selector matching in cache/anchor lookups (spec.md §4.2);
// signed (command) Interests carry their SignatureInfo/Value appended as
// the last two name components per convention, decoded on demand by the
// CommandInterest policy rather than eagerly here.
type Interest struct {
	Name         name.Name
	CanBePrefix  bool
	MustBeFresh  bool
}

// Matches reports whether d would satisfy i, honoring CanBePrefix and
// MustBeFresh. ChildSelector is intentionally not modeled — spec.md §4.2
// requires it be logged and ignored, never silently honored.
func (i Interest) Matches(d Data, freshUntil time.Time, now time.Time) bool {
	if i.CanBePrefix {
		if !i.Name.IsPrefixOf(d.Name) {
			return false
		}
	} else if !i.Name.Equal(d.Name) {
		return false
	}
	if i.MustBeFresh && !now.Before(freshUntil) {
		return false
	}
	return true
}
