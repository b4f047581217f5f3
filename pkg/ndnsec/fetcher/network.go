package fetcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ndn-io/sec2/internal/obslog"
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

// DefaultRetries is the retry budget a CertificateRequest starts with,
// per spec.md §4.5.
const DefaultRetries = 3

// Face is the external transport capability the network fetcher is built
// on (spec.md §4.9): express an Interest, get called back exactly once
// with Data, a timeout, or a NACK.
type Face interface {
	ExpressInterest(ctx context.Context, i packet.Interest, onData func(packet.Data), onTimeout func(), onNack func(reason string))

	// CallLater schedules fn to run after d on the executor; it is the
	// only sanctioned suspension point besides ExpressInterest itself
	// (spec.md §5) — retry backoff delays must go through this, never a
	// blocking sleep.
	CallLater(d time.Duration, fn func())
}

// BackoffFunc returns the retry-to-retry delay schedule; the default
// uses an exponential backoff so retries don't hammer the Face.
type BackoffFunc func() backoff.BackOff

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// FromNetwork is CertificateFetcherFromNetwork (spec.md §4.9): it
// re-expresses the Interest on timeout/NACK, decrementing
// request.RetriesLeft, so a request gets one attempt plus RetriesLeft
// re-expressions (DefaultRetries when RetriesLeft <= 0), rate-limited so
// a pathological validation can't flood the Face.
//
// The retry-with-backoff shape is grounded on the teacher's dependency
// on github.com/cenkalti/backoff/v4 for its own outbound retry policy;
// the outbound rate limit is grounded on golang.org/x/time/rate, present
// in the same dependency pool (see DESIGN.md).
type FromNetwork struct {
	base
	face    Face
	limiter *rate.Limiter
	backoff BackoffFunc
	decode  func(packet.Data) (*cert.V2, error)
}

// NewFromNetwork constructs a FromNetwork fetcher. limiter may be nil to
// disable rate limiting; backoffFn may be nil to use the default
// exponential schedule. decode turns a fetched Data packet into a
// certificate, failing MALFORMED_CERTIFICATE on error.
func NewFromNetwork(st *storage.Storage, face Face, limiter *rate.Limiter, backoffFn BackoffFunc, decode func(packet.Data) (*cert.V2, error)) *FromNetwork {
	if backoffFn == nil {
		backoffFn = defaultBackoff
	}
	f := &FromNetwork{base: base{storage: st}, face: face, limiter: limiter, backoff: backoffFn, decode: decode}
	f.impl = f
	return f
}

func (f *FromNetwork) doFetch(ctx context.Context, req *state.Request, st *state.State, continuation Continuation) {
	if req.RetriesLeft <= 0 {
		req.RetriesLeft = DefaultRetries
	}
	f.attempt(ctx, req, st, continuation, f.backoff())
}

func (f *FromNetwork) attempt(ctx context.Context, req *state.Request, st *state.State, continuation Continuation, bo backoff.BackOff) {
	if f.limiter != nil {
		if r := f.limiter.Reserve(); !r.OK() {
			st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, "rate limiter cannot accommodate request"))
			continuation(nil, st)
			return
		} else if d := r.Delay(); d > 0 {
			// Never block the executor waiting on the limiter (spec.md
			// §5): reschedule this same attempt via CallLater instead.
			r.Cancel()
			f.face.CallLater(d, func() {
				f.attempt(ctx, req, st, continuation, bo)
			})
			return
		}
	}

	onData := func(d packet.Data) {
		if st.HasOutcome() {
			return
		}
		cv, err := f.decode(d)
		if err != nil {
			st.Fail(sec.New(sec.CodeMalformedCertificate, err.Error()))
			continuation(nil, st)
			return
		}
		continuation(cv, st)
	}

	logger := obslog.FromContext(ctx)

	retry := func(reason string) {
		if st.HasOutcome() {
			return
		}
		req.RetriesLeft--
		if req.RetriesLeft < 0 {
			logger.Debugw("certificate fetch exhausted retries", "name", req.Interest.Name.String(), "reason", reason)
			st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, reason))
			continuation(nil, st)
			return
		}
		delay := bo.NextBackOff()
		logger.Debugw("retrying certificate fetch", "name", req.Interest.Name.String(), "reason", reason, "retriesLeft", req.RetriesLeft, "delay", delay)
		f.face.CallLater(delay, func() {
			f.attempt(ctx, req, st, continuation, bo)
		})
	}

	onTimeout := func() { retry("timeout retrieving certificate") }
	onNack := func(reason string) { retry("nacked: " + reason) }

	func() {
		defer func() {
			if r := recover(); r != nil {
				st.Fail(sec.New(sec.CodeCannotRetrieveCertificate, "face panicked"))
				continuation(nil, st)
			}
		}()
		f.face.ExpressInterest(ctx, req.Interest, onData, onTimeout, onNack)
	}()
}
