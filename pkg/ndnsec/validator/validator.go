// Package validator implements Validator (spec.md §4.8): the
// orchestrator owning a ValidationPolicy, CertificateFetcher, and
// CertificateStorage, driving requestCertificate/validateCertificate
// through an Executor trampoline so the resolution chain never recurses
// on the Go call stack (spec.md §9).
package validator

import (
	"context"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/crypto"
	"github.com/ndn-io/sec2/pkg/ndnsec/fetcher"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/policy"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

// DefaultMaxDepth is the certificate chain depth limit (spec.md §4.8).
const DefaultMaxDepth = 25

// Validator owns policy, fetcher, and storage.
type Validator struct {
	policy   policy.Policy
	fetcher  fetcher.Fetcher
	storage  *storage.Storage
	provider crypto.Provider
	clk      clock.Clock
	executor Executor
	maxDepth int

	// decodeInterestSignature extracts the original signed Interest's
	// own SignatureInfo/SignatureValue for the final verifyOriginalPacket
	// step; TLV decoding is out of scope for this module (spec.md §1) so
	// this is supplied by the caller, the same way policies decode
	// command-Interest signatures.
	decodeInterestSignature policy.SignedInterestDecoder
}

// Option configures a Validator at construction time.
type Option func(*Validator)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option { return func(v *Validator) { v.maxDepth = n } }

// WithClock overrides the production System clock.
func WithClock(clk clock.Clock) Option { return func(v *Validator) { v.clk = clk } }

// WithExecutor overrides the default Trampoline executor.
func WithExecutor(e Executor) Option { return func(v *Validator) { v.executor = e } }

// WithCryptoProvider overrides crypto.DefaultProvider.
func WithCryptoProvider(p crypto.Provider) Option { return func(v *Validator) { v.provider = p } }

// New constructs a Validator. Passing a nil fetcher implies an offline
// fetcher (spec.md §6, "Validator(policy) implies an offline fetcher").
func New(pol policy.Policy, fetch fetcher.Fetcher, st *storage.Storage, decodeInterestSignature policy.SignedInterestDecoder, opts ...Option) *Validator {
	if fetch == nil {
		fetch = fetcher.NewOffline(st)
	}
	v := &Validator{
		policy:                  pol,
		fetcher:                 fetch,
		storage:                 st,
		provider:                crypto.DefaultProvider{},
		clk:                     clock.System{},
		executor:                NewTrampoline(),
		maxDepth:                DefaultMaxDepth,
		decodeInterestSignature: decodeInterestSignature,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetMaxDepth / MaxDepth implement spec.md §6's getter/setter pair.
func (v *Validator) SetMaxDepth(n int) { v.maxDepth = n }
func (v *Validator) MaxDepth() int     { return v.maxDepth }

// Policy / Fetcher implement spec.md §6's getPolicy()/getFetcher().
func (v *Validator) Policy() policy.Policy     { return v.policy }
func (v *Validator) Fetcher() fetcher.Fetcher  { return v.fetcher }
func (v *Validator) Storage() *storage.Storage { return v.storage }

// ValidateData validates a Data packet (spec.md §4.8 step 1-3).
func (v *Validator) ValidateData(ctx context.Context, d packet.Data, onSuccess state.DataSuccessFunc, onFailure func(packet.Data, *sec.Error)) {
	st := state.NewData(d, onSuccess, onFailure)
	v.policy.CheckPolicyData(d, st, func(req *state.Request, st *state.State) {
		v.onPolicyDecision(ctx, req, st)
	})
}

// ValidateInterest validates a signed Interest.
func (v *Validator) ValidateInterest(ctx context.Context, i packet.Interest, onSuccess state.InterestSuccessFunc, onFailure state.FailureFunc) {
	st := state.NewInterest(i, onSuccess, onFailure)
	v.policy.CheckPolicyInterest(i, st, func(req *state.Request, st *state.State) {
		v.onPolicyDecision(ctx, req, st)
	})
}

func (v *Validator) onPolicyDecision(ctx context.Context, req *state.Request, st *state.State) {
	if req == nil {
		st.BypassValidation()
		return
	}
	v.executor.Schedule(func() { v.requestCertificate(ctx, req, st) })
}

// requestCertificate implements spec.md §4.8's requestCertificate.
func (v *Validator) requestCertificate(ctx context.Context, req *state.Request, st *state.State) {
	if st.HasOutcome() {
		return
	}
	if st.Depth() >= v.maxDepth {
		st.Fail(sec.New(sec.CodeExceededDepthLimit, "certificate chain exceeds max depth"))
		return
	}
	if st.HasSeenCertificateName(req.Interest.Name) {
		st.Fail(sec.New(sec.CodeLoopDetected, "certificate name already seen in this validation: "+req.Interest.Name.String()))
		return
	}

	cv, err := v.storage.FindTrustedCertificateByInterest(req.Interest, false, nil)
	if err != nil {
		st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, err.Error()))
		return
	}
	if cv != nil {
		v.finishWithTrustedCertificate(st, cv)
		return
	}

	v.fetcher.Fetch(ctx, req, st, func(cv *cert.V2, st *state.State) {
		if st.HasOutcome() || cv == nil {
			return
		}
		v.executor.Schedule(func() { v.validateCertificate(ctx, cv, st) })
	})
}

// finishWithTrustedCertificate implements the "hit" branch of
// requestCertificate: verify the accumulated chain under the trusted
// certificate, then the original packet, caching everything that
// verifies (spec.md §4.8).
func (v *Validator) finishWithTrustedCertificate(st *state.State, trusted *cert.V2) {
	bottom := st.VerifyCertificateChain(v.provider, trusted)
	if bottom == nil {
		return
	}
	if st.IsInterest() {
		info, sigValue, serr := v.decodeInterestSignature(
			st.Interest().Name,
			st.Interest().Name.At(st.Interest().Name.Size()-2),
			st.Interest().Name.At(st.Interest().Name.Size()-1),
		)
		if serr != nil {
			st.Fail(sec.New(sec.CodePolicyError, serr.Error()))
			return
		}
		st.VerifyOriginalPacketInterest(v.provider, bottom, packet.Signature{Info: info, Value: sigValue})
	} else {
		st.VerifyOriginalPacketData(v.provider, bottom)
	}
	if st.Outcome() != state.Success {
		return
	}
	for _, c := range st.Chain() {
		v.storage.CacheVerifiedCertificate(c)
	}
}

// validateCertificate implements spec.md §4.8's validateCertificate.
func (v *Validator) validateCertificate(ctx context.Context, cv *cert.V2, st *state.State) {
	if st.HasOutcome() {
		return
	}
	if !cv.IsValid(v.clk.Now()) {
		st.Fail(sec.New(sec.CodeExpiredCertificate, "certificate "+cv.Name().String()+" is expired"))
		return
	}
	v.policy.CheckCertificatePolicy(cv, st, func(req *state.Request, st *state.State) {
		if req == nil {
			st.Fail(sec.New(sec.CodePolicyError, "policy cannot designate "+cv.Name().String()+" as a trust anchor"))
			return
		}
		st.AddCertificate(cv)
		v.executor.Schedule(func() { v.requestCertificate(ctx, req, st) })
	})
}
