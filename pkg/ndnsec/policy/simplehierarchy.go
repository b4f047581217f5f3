package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
)

// SimpleHierarchy requires the signer's key name to be a prefix-minus-two
// ancestor of the packet it signed (spec.md §4.6): a KeyLocator naming
// `/A/B/KEY/k` may sign anything under `/A/B`.
type SimpleHierarchy struct {
	base
	decode SignedInterestDecoder
}

// NewSimpleHierarchy constructs a SimpleHierarchy policy. decode is only
// consulted for signed Interests.
func NewSimpleHierarchy(decode SignedInterestDecoder) *SimpleHierarchy {
	p := &SimpleHierarchy{decode: decode}
	p.self = p
	return p
}

func (p *SimpleHierarchy) CheckPolicyData(d packet.Data, st *state.State, continuation Continuation) {
	kl, err := keyLocatorFromData(d)
	if err != nil {
		st.Fail(err)
		return
	}
	if !checkHierarchy(kl.Name, d.Name) {
		st.Fail(sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not a hierarchical signer of "+d.Name.String()))
		return
	}
	continuation(&state.Request{Interest: packet.Interest{Name: kl.Name, CanBePrefix: true, MustBeFresh: true}, RetriesLeft: -1}, st)
}

func (p *SimpleHierarchy) CheckPolicyInterest(i packet.Interest, st *state.State, continuation Continuation) {
	info, _, serr := decodeSignedInterest(i, p.decode)
	if serr != nil {
		st.Fail(serr)
		return
	}
	if !checkHierarchy(info.KeyLocator.Name, i.Name) {
		st.Fail(sec.New(sec.CodeInvalidKeyLocator, "KeyLocator is not a hierarchical signer of "+i.Name.String()))
		return
	}
	continuation(&state.Request{Interest: packet.Interest{Name: info.KeyLocator.Name, CanBePrefix: true, MustBeFresh: true}, RetriesLeft: -1}, st)
}

// checkHierarchy implements "L.prefix(-2).isPrefixOf(packet.name)"
// (spec.md §4.6): the key's identity (its name minus /KEY/{keyId}) must
// be an ancestor of the signed packet's name.
func checkHierarchy(keyLocatorName, packetName name.Name) bool {
	if keyLocatorName.Size() < 2 {
		return false
	}
	return keyLocatorName.Prefix(-2).IsPrefixOf(packetName)
}
