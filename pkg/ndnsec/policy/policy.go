// Package policy implements ValidationPolicy and its variants (spec.md
// §4.6): AcceptAll, SimpleHierarchy, Config, FromPib, and CommandInterest.
//
// The "exactly one of several shapes configures this node" style, and
// the chain-of-delegation between an outer and an inner policy, are
// grounded on pkg/policy/policy.go's Source/Verification types: a Source
// validates that exactly one of {Data, Path, URL} is set (this package's
// Config rules validate that exactly one filter/checker shape matches),
// and Verification.Policies is itself a list consulted in order, the
// same "first match wins" evaluation Config rules use here.
package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
)

// Continuation receives a possibly-nil CertificateRequest: nil means the
// packet conforms and needs no key fetch (bypass); non-nil names the
// certificate to request next.
type Continuation func(req *state.Request, st *state.State)

// Policy is the ValidationPolicy capability set (spec.md §4.6). The
// default CheckCertificatePolicy reuses CheckPolicyData by wrapping the
// certificate's underlying Data packet, matching the spec's "default
// implementation of the last reuses the data path."
type Policy interface {
	CheckPolicyData(d packet.Data, st *state.State, continuation Continuation)
	CheckPolicyInterest(i packet.Interest, st *state.State, continuation Continuation)
	CheckCertificatePolicy(cv *cert.V2, st *state.State, continuation Continuation)
	SetInnerPolicy(inner Policy)
}

// base gives every concrete policy SetInnerPolicy and a default
// CheckCertificatePolicy, so each variant only needs to implement the
// two packet-shaped methods plus wire itself into base via embedding.
type base struct {
	inner Policy
	self  Policy
}

func (b *base) SetInnerPolicy(inner Policy) { b.inner = inner }

// CheckCertificatePolicy default: reuse the Data path against the
// certificate's Data packet (spec.md §4.6).
func (b *base) CheckCertificatePolicy(cv *cert.V2, st *state.State, continuation Continuation) {
	b.self.CheckPolicyData(cv.Data(), st, continuation)
}

func keyLocatorFromData(d packet.Data) (packet.KeyLocator, *sec.Error) {
	kl := d.Signature.Info.KeyLocator
	if kl.Type != packet.KeyLocatorTypeKeyName {
		return kl, sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not of type KEYNAME")
	}
	return kl, nil
}

// SignedInterestDecoder decodes the SignatureInfo/SignatureValue carried
// in a signed Interest's last two name components. TLV decoding is out
// of scope for this module (spec.md §1), so every policy that inspects
// signed Interests takes one of these from its caller.
type SignedInterestDecoder func(n name.Name, infoComp, sigComp name.Component) (packet.SignatureInfo, []byte, error)

// decodeSignedInterest extracts SignatureInfo/SignatureValue from the
// last two name components of a signed Interest, per spec.md §4.6.
// Returns a POLICY_ERROR when the name has fewer than two components or
// decode fails, and INVALID_KEY_LOCATOR when the KeyLocator is not of
// type KEYNAME.
func decodeSignedInterest(i packet.Interest, decode SignedInterestDecoder) (packet.SignatureInfo, []byte, *sec.Error) {
	n := i.Name.Size()
	if n < 2 {
		return packet.SignatureInfo{}, nil, sec.New(sec.CodePolicyError, "signed Interest name too short")
	}
	info, sigValue, err := decode(i.Name, i.Name.At(n-2), i.Name.At(n-1))
	if err != nil {
		return packet.SignatureInfo{}, nil, sec.New(sec.CodePolicyError, err.Error())
	}
	if info.KeyLocator.Type != packet.KeyLocatorTypeKeyName {
		return packet.SignatureInfo{}, nil, sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not of type KEYNAME")
	}
	return info, sigValue, nil
}
