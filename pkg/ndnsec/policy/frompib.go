package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

// Pib is the external Public Information Base this policy variant
// consults: given a key name, return that key's default certificate.
// TLV/PIB storage format is out of scope for this module (spec.md §1).
type Pib interface {
	DefaultCertificateForKey(keyName name.Name) (*cert.V2, error)
}

// FromPib looks up the signer's key in an external PIB, temporarily
// installs its default certificate as a trust anchor, and requests that
// exact certificate name. The anchor is removed again by a success hook
// when the validation succeeds; when the validation fails, it stays
// installed.
type FromPib struct {
	base
	pib            Pib
	storage        *storage.Storage
	decodeInterest SignedInterestDecoder
}

// NewFromPib constructs a FromPib policy.
func NewFromPib(pib Pib, st *storage.Storage, decodeInterest SignedInterestDecoder) *FromPib {
	p := &FromPib{pib: pib, storage: st, decodeInterest: decodeInterest}
	p.self = p
	return p
}

const fromPibGroupID = "from-pib-transient"

func (p *FromPib) requestForKeyLocator(kl packet.KeyLocator, st *state.State, continuation Continuation) {
	if kl.Type != packet.KeyLocatorTypeKeyName {
		st.Fail(sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not of type KEYNAME"))
		return
	}
	cv, err := p.pib.DefaultCertificateForKey(kl.Name)
	if err != nil || cv == nil {
		st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, "no default certificate for key "+kl.Name.String()))
		return
	}

	// Anchor cv so the storage lookup this certificate request triggers
	// resolves it. The success hook removes it again; on failure it is
	// not removed.
	if err := p.storage.LoadAnchor(fromPibGroupID, cv); err != nil {
		st.Fail(sec.New(sec.CodeImplementationError, err.Error()))
		return
	}
	st.AddSuccessHook(func() { p.storage.RemoveAnchor(cv) })
	continuation(&state.Request{Interest: packet.Interest{Name: cv.Name(), MustBeFresh: true}, RetriesLeft: -1}, st)
}

func (p *FromPib) CheckPolicyData(d packet.Data, st *state.State, continuation Continuation) {
	p.requestForKeyLocator(d.Signature.Info.KeyLocator, st, continuation)
}

func (p *FromPib) CheckPolicyInterest(i packet.Interest, st *state.State, continuation Continuation) {
	info, _, serr := decodeSignedInterest(i, p.decodeInterest)
	if serr != nil {
		st.Fail(serr)
		return
	}
	p.requestForKeyLocator(info.KeyLocator, st, continuation)
}
