package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/replay"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
)

func policyError(msg string) *sec.Error { return sec.New(sec.CodePolicyError, msg) }

// CommandInterest wraps an inner policy, defending signed Interests
// against replay before delegating signature validation (spec.md §4.6).
// Data packets pass straight through to the inner policy unchanged.
type CommandInterest struct {
	base
	tracker *replay.Tracker
	decode  SignedInterestDecoder
}

// NewCommandInterest constructs a CommandInterest policy wrapping inner.
func NewCommandInterest(tracker *replay.Tracker, decode SignedInterestDecoder, inner Policy) *CommandInterest {
	p := &CommandInterest{tracker: tracker, decode: decode}
	p.self = p
	p.inner = inner
	return p
}

func (p *CommandInterest) CheckPolicyData(d packet.Data, st *state.State, continuation Continuation) {
	p.inner.CheckPolicyData(d, st, continuation)
}

func (p *CommandInterest) CheckPolicyInterest(i packet.Interest, st *state.State, continuation Continuation) {
	idx, ok := replay.TimestampComponentIndex(i.Name.Size())
	if !ok {
		st.Fail(policyError("command Interest name shorter than minimum size"))
		return
	}
	timestamp, perr := replay.ParseTimestampComponent(i.Name.At(idx))
	if perr != nil {
		st.Fail(policyError(perr.Error()))
		return
	}

	keyLocatorName, kerr := p.decodeKeyLocatorName(i)
	if kerr != nil {
		st.Fail(kerr)
		return
	}

	result := p.tracker.CheckTimestamp(keyLocatorName, timestamp)
	if !result.OK() {
		st.Fail(result.Err())
		return
	}

	st.AddSuccessHook(result.Commit)
	p.inner.CheckPolicyInterest(i, st, continuation)
}

func (p *CommandInterest) decodeKeyLocatorName(i packet.Interest) (name.Name, *sec.Error) {
	info, _, serr := decodeSignedInterest(i, p.decode)
	if serr != nil {
		return name.Name{}, serr
	}
	return info.KeyLocator.Name, nil
}
