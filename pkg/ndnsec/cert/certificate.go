// Package cert implements CertificateV2, the typed view over a Data
// packet that conforms to the NDN certificate naming convention
// (spec.md §4.1).
package cert

import (
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
)

// keyMarker is the fixed "KEY" name component required between a
// certificate's identity and its keyId, per the naming convention
// /{identity}/KEY/{keyId}/{issuerId}/{version}.
var keyMarker = name.Component("KEY")

// V2 is an immutable, already-validated view over a Data packet.
type V2 struct {
	data packet.Data
}

// Decode validates d against the certificate naming convention and
// content requirements and returns a V2 wrapping it. All failure paths
// return a *sec.Error with Code == CodeMalformedCertificate, per
// spec.md §4.1.
func Decode(d packet.Data) (*V2, error) {
	n := d.Name
	// Name shape: at least 4 components after (and including) the KEY
	// marker: KEY, keyId, issuerId, version.
	if n.Size() < 4 {
		return nil, sec.New(sec.CodeMalformedCertificate, "name too short for certificate convention")
	}
	if !n.At(-4).Equal(keyMarker) {
		return nil, sec.New(sec.CodeMalformedCertificate, "name does not contain KEY marker at expected position")
	}
	if d.MetaInfo.ContentType != packet.ContentTypeKey {
		return nil, sec.New(sec.CodeMalformedCertificate, "ContentType is not KEY")
	}
	if d.MetaInfo.FreshnessPeriod < 0 {
		return nil, sec.New(sec.CodeMalformedCertificate, "FreshnessPeriod is negative")
	}
	if len(d.Content) == 0 {
		return nil, sec.New(sec.CodeMalformedCertificate, "Content (public key) is empty")
	}
	if d.Signature.Info.ValidityPeriod == nil {
		return nil, sec.New(sec.CodeMalformedCertificate, "SignatureInfo lacks a ValidityPeriod")
	}
	vp := d.Signature.Info.ValidityPeriod
	if vp.NotBefore.After(vp.NotAfter) {
		return nil, sec.New(sec.CodeMalformedCertificate, "ValidityPeriod notBefore is after notAfter")
	}
	return &V2{data: d}, nil
}

// Data returns the underlying Data packet.
func (c *V2) Data() packet.Data { return c.data }

// Name returns the certificate's full name.
func (c *V2) Name() name.Name { return c.data.Name }

// Identity returns the prefix before the KEY marker.
func (c *V2) Identity() name.Name { return c.data.Name.Prefix(-4) }

// KeyName returns the name up to and including keyId.
func (c *V2) KeyName() name.Name { return c.data.Name.Prefix(-2) }

func (c *V2) KeyID() name.Component    { return c.data.Name.At(-3) }
func (c *V2) IssuerID() name.Component { return c.data.Name.At(-2) }
func (c *V2) Version() name.Component  { return c.data.Name.At(-1) }

// PublicKey returns the DER-encoded SubjectPublicKeyInfo content.
func (c *V2) PublicKey() []byte { return c.data.Content }

// ValidityPeriod returns the certificate's validity bounds.
func (c *V2) ValidityPeriod() packet.ValidityPeriod {
	return *c.data.Signature.Info.ValidityPeriod
}

// IsValid reports whether t falls within the certificate's validity
// period (spec.md §4.1, isValid(t)).
func (c *V2) IsValid(t time.Time) bool {
	return c.ValidityPeriod().Contains(t)
}

// KeyLocator returns the issuing signature's KeyLocator, i.e. the name of
// the certificate that signed this one.
func (c *V2) KeyLocator() packet.KeyLocator {
	return c.data.Signature.Info.KeyLocator
}

// SignatureType returns the issuing signature's algorithm.
func (c *V2) SignatureType() packet.SignatureType {
	return c.data.Signature.Info.Type
}
