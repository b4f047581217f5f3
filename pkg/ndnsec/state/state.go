// Package state implements ValidationState (spec.md §4.7): the
// per-request record that accumulates a certificate chain while a
// Validator walks it toward a trust anchor, and that guarantees exactly
// one of its success/failure callbacks ever fires.
//
// The outcome-latch ("second attempt to decide is silently ignored")
// shape is grounded on knative's apis.FieldError accumulation pattern —
// kept here as a single idempotent transition guarded by hasOutcome
// rather than a list-of-errors accumulator, since spec.md §7 is explicit
// that only the first fail/success call may take effect.
package state

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/crypto"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
)

// Outcome is the terminal disposition of a validation.
type Outcome int

const (
	Pending Outcome = iota
	Success
	Failure
)

// Request is a CertificateRequest: an Interest naming a missing
// certificate, carrying a retry budget consumed by the network fetcher.
type Request struct {
	Interest     packet.Interest
	RetriesLeft  int
}

// DataSuccessFunc is the terminal success callback for a Data validation;
// InterestSuccessFunc and FailureFunc are the success and failure
// callbacks for a signed-Interest validation.
type DataSuccessFunc func(packet.Data)
type InterestSuccessFunc func(packet.Interest)
type FailureFunc func(packet.Interest, *sec.Error)

// State is a ValidationState. It is deliberately variant-tagged (Data vs
// Interest) rather than split into two types implementing a shared
// interface, per spec.md §9 ("replace class hierarchies with sum
// types... dispatch via exhaustive match").
type State struct {
	isInterest bool
	data       packet.Data
	interest   packet.Interest

	chain []*cert.V2
	seen  map[string]bool
	depth int

	outcome    Outcome
	dataOK     DataSuccessFunc
	interestOK []InterestSuccessFunc // plural for Interest, per spec.md §4.7
	onFail     func(*sec.Error)

	// successHooks run once, when the state reaches Success — after
	// the original packet verifies, and also on BypassValidation. They
	// never run on failure. The CommandInterest policy uses one to
	// commit the replay tracker (spec.md §4.6).
	successHooks []func()
}

// NewData constructs a ValidationState for a Data packet.
func NewData(d packet.Data, onSuccess DataSuccessFunc, onFailure func(packet.Data, *sec.Error)) *State {
	s := &State{
		isInterest: false,
		data:       d,
		seen:       make(map[string]bool),
		dataOK:     onSuccess,
	}
	s.onFail = func(e *sec.Error) {
		if onFailure != nil {
			onFailure(d, e)
		}
	}
	return s
}

// NewInterest constructs a ValidationState for a signed Interest.
func NewInterest(i packet.Interest, onSuccess InterestSuccessFunc, onFailure FailureFunc) *State {
	s := &State{
		isInterest: true,
		interest:   i,
		seen:       make(map[string]bool),
	}
	if onSuccess != nil {
		s.interestOK = []InterestSuccessFunc{onSuccess}
	}
	s.onFail = func(e *sec.Error) {
		if onFailure != nil {
			onFailure(i, e)
		}
	}
	return s
}

// IsInterest reports whether this state validates a signed Interest
// rather than Data.
func (s *State) IsInterest() bool { return s.isInterest }

// Data returns the bound Data packet; valid only when !IsInterest().
func (s *State) Data() packet.Data { return s.data }

// Interest returns the bound Interest packet; valid only when
// IsInterest().
func (s *State) Interest() packet.Interest { return s.interest }

// AddInterestSuccessCallback appends another success callback, run after
// the caller's original one when a signed-Interest validation succeeds.
func (s *State) AddInterestSuccessCallback(f InterestSuccessFunc) {
	s.interestOK = append(s.interestOK, f)
}

// AddSuccessHook registers f to run once when the state reaches Success,
// before the success callbacks. Hooks run both after the original packet
// verifies and on BypassValidation; they do not run on failure. Used by
// CommandInterest to commit a replay-tracker record only once the
// validation has succeeded.
func (s *State) AddSuccessHook(f func()) {
	s.successHooks = append(s.successHooks, f)
}

// Depth returns the current chain length.
func (s *State) Depth() int { return len(s.chain) }

// HasOutcome reports whether this validation has already terminated;
// pending fetch continuations check this to no-op after cancellation
// (spec.md §5).
func (s *State) HasOutcome() bool { return s.outcome != Pending }

// Outcome returns the current terminal disposition (Pending until
// decided).
func (s *State) Outcome() Outcome { return s.outcome }

// AddCertificate appends cert to the chain. Certificates are discovered
// walking away from the original packet toward the trust anchor, so the
// first cert added is the one closest to the packet: chain[0] signs the
// original packet, chain[i+1] signs chain[i].
func (s *State) AddCertificate(cv *cert.V2) {
	s.chain = append(s.chain, cv)
}

// Chain returns the accumulated certificate chain, bottom (closest to
// the original packet) first.
func (s *State) Chain() []*cert.V2 { return s.chain }

// HasSeenCertificateName reports whether n was already recorded along
// this validation's resolution path; if not, it is recorded and false is
// returned. Used for loop detection (spec.md §4.7, §8 property 3).
func (s *State) HasSeenCertificateName(n name.Name) bool {
	key := n.String()
	if s.seen[key] {
		return true
	}
	s.seen[key] = true
	return false
}

// Fail transitions the state to Failure and invokes the failure callback
// exactly once; subsequent calls (success or failure) are silently
// ignored, per spec.md §7 and §8 property 1.
func (s *State) Fail(e *sec.Error) {
	if s.outcome != Pending {
		return
	}
	s.outcome = Failure
	if s.onFail != nil {
		s.onFail(e)
	}
}

// BypassValidation transitions to Success without any cryptographic
// check, invoking success callbacks. No certificate is added to the
// verified cache as a result (spec.md §8 property 8) — callers must not
// cache anything when this path is taken.
func (s *State) BypassValidation() {
	if s.outcome != Pending {
		return
	}
	s.outcome = Success
	s.fireSuccess()
}

// VerifyCertificateChain walks the chain from the top (chain[last], the
// certificate furthest from the original packet) down to chain[0],
// verifying each certificate's signature under the previously-validated
// one, starting from trusted. On the first signature failure it calls
// Fail(INVALID_SIGNATURE), truncates the unverified tail, and returns
// nil. On full success it returns the bottom-most verified certificate
// (chain[0]), the one that will verify the original packet.
func (s *State) VerifyCertificateChain(provider crypto.Provider, trusted *cert.V2) *cert.V2 {
	verifier := trusted
	for i := len(s.chain) - 1; i >= 0; i-- {
		c := s.chain[i]
		sig := c.Data().Signature
		if err := provider.VerifySignature(sig.Info.Type, verifier.PublicKey(), sig.SignedPortion, sig.Value); err != nil {
			s.Fail(sec.New(sec.CodeInvalidSignature, "certificate chain verification failed"))
			s.chain = s.chain[i+1:]
			return nil
		}
		verifier = c
	}
	return verifier
}

// VerifyOriginalPacketData verifies the bound Data's signature under
// trusted's public key; on success it fires success callbacks and sets
// outcome=Success, on failure it calls Fail(INVALID_SIGNATURE).
func (s *State) VerifyOriginalPacketData(provider crypto.Provider, trusted *cert.V2) {
	if s.outcome != Pending {
		return
	}
	sig := s.data.Signature
	if err := provider.VerifySignature(sig.Info.Type, trusted.PublicKey(), sig.SignedPortion, sig.Value); err != nil {
		s.Fail(sec.New(sec.CodeInvalidSignature, "original packet signature verification failed"))
		return
	}
	s.outcome = Success
	s.fireSuccess()
}

// VerifyOriginalPacketInterest is VerifyOriginalPacketData's signed-
// Interest counterpart.
func (s *State) VerifyOriginalPacketInterest(provider crypto.Provider, trusted *cert.V2, sig packet.Signature) {
	if s.outcome != Pending {
		return
	}
	if err := provider.VerifySignature(sig.Info.Type, trusted.PublicKey(), sig.SignedPortion, sig.Value); err != nil {
		s.Fail(sec.New(sec.CodeInvalidSignature, "signed Interest verification failed"))
		return
	}
	s.outcome = Success
	s.fireSuccess()
}

func (s *State) fireSuccess() {
	for _, hook := range s.successHooks {
		hook()
	}
	if s.isInterest {
		for _, cb := range s.interestOK {
			cb(s.interest)
		}
		return
	}
	if s.dataOK != nil {
		s.dataOK(s.data)
	}
}
