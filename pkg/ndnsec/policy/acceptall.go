package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
)

// AcceptAll always bypasses validation (spec.md §4.6). Useful for
// development and for sub-trees explicitly marked trusted by a Config
// "bypass" rule.
type AcceptAll struct{ base }

// NewAcceptAll constructs an AcceptAll policy.
func NewAcceptAll() *AcceptAll {
	p := &AcceptAll{}
	p.self = p
	return p
}

func (p *AcceptAll) CheckPolicyData(_ packet.Data, st *state.State, continuation Continuation) {
	continuation(nil, st)
}

func (p *AcceptAll) CheckPolicyInterest(_ packet.Interest, st *state.State, continuation Continuation) {
	continuation(nil, st)
}
