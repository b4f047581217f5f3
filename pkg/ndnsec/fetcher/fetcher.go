// Package fetcher implements CertificateFetcher and its three variants
// (spec.md §4.5): offline, from-storage, and from-network.
//
// Contract shared by all variants: check the unverified cache first,
// delegate to doFetch on a miss, cache whatever doFetch produces, and
// translate permanent failure into state.Fail(CANNOT_RETRIEVE_CERTIFICATE).
package fetcher

import (
	"context"

	"github.com/ndn-io/sec2/internal/obslog"
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

// Continuation receives the fetched certificate on success; nil means
// the fetch ultimately failed and state.Fail has already been called.
type Continuation func(cv *cert.V2, st *state.State)

// Fetcher is the CertificateFetcher capability.
type Fetcher interface {
	Fetch(ctx context.Context, req *state.Request, st *state.State, continuation Continuation)
}

// doFetcher is implemented by each variant's implementation-specific
// retrieval step; Base wraps it with the shared cache-first contract.
type doFetcher interface {
	doFetch(ctx context.Context, req *state.Request, st *state.State, continuation Continuation)
}

// base implements the shared three-step contract from spec.md §4.5,
// delegating the miss path to a variant's doFetch.
type base struct {
	storage *storage.Storage
	impl    doFetcher
}

func (b *base) Fetch(ctx context.Context, req *state.Request, st *state.State, continuation Continuation) {
	logger := obslog.FromContext(ctx)
	if cv := b.storage.FindUnverifiedCertificateByInterest(req.Interest, false, nil); cv != nil {
		logger.Debugw("fetch resolved from unverified cache", "name", req.Interest.Name.String())
		continuation(cv, st)
		return
	}
	logger.Debugw("dispatching certificate fetch", "name", req.Interest.Name.String())
	b.impl.doFetch(ctx, req, st, func(cv *cert.V2, st *state.State) {
		if st.HasOutcome() {
			return
		}
		if cv != nil {
			b.storage.CacheUnverifiedCertificate(cv)
		}
		continuation(cv, st)
	})
}

// Offline never retrieves anything; every request fails immediately.
type Offline struct {
	base
}

// NewOffline constructs an Offline fetcher bound to storage (it still
// needs storage to satisfy the unverified-cache-first contract).
func NewOffline(st *storage.Storage) *Offline {
	f := &Offline{base: base{storage: st}}
	f.impl = f
	return f
}

func (f *Offline) doFetch(_ context.Context, req *state.Request, st *state.State, continuation Continuation) {
	st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, "offline fetcher cannot retrieve "+req.Interest.Name.String()))
	continuation(nil, st)
}

// FromStorage resolves only from certificates already held by the bound
// storage — no retrieval of any kind: after Fetch's own unverified-cache
// step, doFetch looks in the trust anchors and the verified cache, and
// fails CANNOT_RETRIEVE_CERTIFICATE when neither holds a match.
type FromStorage struct {
	base
}

// NewFromStorage constructs a FromStorage fetcher.
func NewFromStorage(st *storage.Storage) *FromStorage {
	f := &FromStorage{base: base{storage: st}}
	f.impl = f
	return f
}

func (f *FromStorage) doFetch(_ context.Context, req *state.Request, st *state.State, continuation Continuation) {
	cv, err := f.storage.FindTrustedCertificateByInterest(req.Interest, false, nil)
	if err != nil {
		st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, err.Error()))
		continuation(nil, st)
		return
	}
	if cv == nil {
		st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, "certificate not found in storage: "+req.Interest.Name.String()))
		continuation(nil, st)
		return
	}
	continuation(cv, st)
}
