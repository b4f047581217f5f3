package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

// fakeFace runs one scripted behavior per ExpressInterest call and
// executes CallLater synchronously, so tests don't need a real event
// loop or real time to pass.
type fakeFace struct {
	behaviors      []func(onData func(packet.Data), onTimeout func(), onNack func(string))
	expressCalls   int
	callLaterCalls int
}

func (f *fakeFace) ExpressInterest(_ context.Context, _ packet.Interest, onData func(packet.Data), onTimeout func(), onNack func(string)) {
	b := f.behaviors[f.expressCalls]
	f.expressCalls++
	b(onData, onTimeout, onNack)
}

func (f *fakeFace) CallLater(_ time.Duration, fn func()) {
	f.callLaterCalls++
	fn()
}

func decodeFixture(d packet.Data) (*cert.V2, error) { return cert.Decode(d) }

func TestFromNetworkSucceedsOnFirstAttempt(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		func(onData func(packet.Data), _ func(), _ func(string)) {
			onData(packet.Data{
				Name:     cv.Name(),
				MetaInfo: packet.MetaInfo{ContentType: packet.ContentTypeKey},
				Content:  []byte("pubkey"),
				Signature: packet.Signature{Info: packet.SignatureInfo{
					ValidityPeriod: &packet.ValidityPeriod{
						NotBefore: time.Now().Add(-time.Hour),
						NotAfter:  time.Now().Add(time.Hour),
					},
				}},
			})
		},
	}}

	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, nil, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}}
	dst := state.NewData(packet.Data{}, nil, nil)
	var got *cert.V2
	f.Fetch(context.Background(), req, dst, func(c *cert.V2, _ *state.State) { got = c })

	if got == nil || !got.Name().Equal(cv.Name()) {
		t.Fatalf("expected a decoded certificate, got %v", got)
	}
	if face.expressCalls != 1 {
		t.Errorf("expected exactly one ExpressInterest call, got %d", face.expressCalls)
	}
}

func TestFromNetworkRetriesOnTimeoutThenSucceeds(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	d := packet.Data{
		Name:     cv.Name(),
		MetaInfo: packet.MetaInfo{ContentType: packet.ContentTypeKey},
		Content:  []byte("pubkey"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			ValidityPeriod: &packet.ValidityPeriod{
				NotBefore: time.Now().Add(-time.Hour),
				NotAfter:  time.Now().Add(time.Hour),
			},
		}},
	}
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		func(_ func(packet.Data), onTimeout func(), _ func(string)) { onTimeout() },
		func(onData func(packet.Data), _ func(), _ func(string)) { onData(d) },
	}}

	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, nil, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}}
	dst := state.NewData(packet.Data{}, nil, nil)
	var got *cert.V2
	f.Fetch(context.Background(), req, dst, func(c *cert.V2, _ *state.State) { got = c })

	if got == nil || !got.Name().Equal(cv.Name()) {
		t.Fatalf("expected the retry to eventually succeed, got %v", got)
	}
	if face.expressCalls != 2 {
		t.Errorf("expected two ExpressInterest calls (timeout then success), got %d", face.expressCalls)
	}
	if face.callLaterCalls == 0 {
		t.Error("expected the retry delay to be scheduled via CallLater")
	}
}

func TestFromNetworkFailsAfterRetriesExhausted(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	timeoutAlways := func(_ func(packet.Data), onTimeout func(), _ func(string)) { onTimeout() }
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		timeoutAlways, timeoutAlways, timeoutAlways, timeoutAlways,
	}}

	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, nil, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}}
	var failed *sec.Error
	dst := state.NewData(packet.Data{}, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	var got *cert.V2
	f.Fetch(context.Background(), req, dst, func(c *cert.V2, _ *state.State) { got = c })

	if got != nil {
		t.Error("expected no certificate after exhausting retries")
	}
	if failed == nil || failed.Code != sec.CodeCannotRetrieveCertificate {
		t.Fatalf("expected CodeCannotRetrieveCertificate, got %v", failed)
	}
	if face.expressCalls != DefaultRetries+1 {
		t.Errorf("expected %d ExpressInterest attempts (initial + %d retries), got %d", DefaultRetries+1, DefaultRetries, face.expressCalls)
	}
}

// TestFromNetworkHonorsDefaultRetriesSentinelFromPolicy exercises the
// RetriesLeft: -1 sentinel every policy actually issues (see
// simplehierarchy.go, config.go, frompib.go), not the Go zero value 0 the
// other tests in this file construct by leaving the field unset.
func TestFromNetworkHonorsDefaultRetriesSentinelFromPolicy(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	timeoutAlways := func(_ func(packet.Data), onTimeout func(), _ func(string)) { onTimeout() }
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		timeoutAlways, timeoutAlways, timeoutAlways, timeoutAlways,
	}}

	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, nil, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}, RetriesLeft: -1}
	var failed *sec.Error
	dst := state.NewData(packet.Data{}, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	f.Fetch(context.Background(), req, dst, func(*cert.V2, *state.State) {})

	if failed == nil || failed.Code != sec.CodeCannotRetrieveCertificate {
		t.Fatalf("expected CodeCannotRetrieveCertificate, got %v", failed)
	}
	if face.expressCalls != DefaultRetries+1 {
		t.Errorf("expected a policy-issued request to get the full %d attempts (initial + %d retries), got %d", DefaultRetries+1, DefaultRetries, face.expressCalls)
	}
}

func TestFromNetworkMalformedCertificateFails(t *testing.T) {
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		func(onData func(packet.Data), _ func(), _ func(string)) {
			onData(packet.Data{Name: name.Parse("/a/KEY/k1/self/v1")})
		},
	}}

	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, nil, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: name.Parse("/a/KEY/k1/self/v1")}}
	var failed *sec.Error
	dst := state.NewData(packet.Data{}, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	f.Fetch(context.Background(), req, dst, func(*cert.V2, *state.State) {})
	if failed == nil || failed.Code != sec.CodeMalformedCertificate {
		t.Fatalf("expected CodeMalformedCertificate for undecodable Data, got %v", failed)
	}
}

func TestFromNetworkRateLimiterRejectsZeroBurst(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		func(func(packet.Data), func(), func(string)) {
			t.Fatal("ExpressInterest should not be reached when the limiter rejects the request")
		},
	}}

	limiter := rate.NewLimiter(rate.Every(time.Hour), 0)
	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, limiter, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}}
	var failed *sec.Error
	dst := state.NewData(packet.Data{}, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	f.Fetch(context.Background(), req, dst, func(*cert.V2, *state.State) {})
	if failed == nil || failed.Code != sec.CodeCannotRetrieveCertificate {
		t.Fatalf("expected CodeCannotRetrieveCertificate from a zero-burst limiter, got %v", failed)
	}
}

// A limiter with spare burst capacity never delays or rejects a single
// request; this just confirms the happy path still runs when a limiter
// is configured rather than left nil.
func TestFromNetworkRateLimiterPermitsWithinBurst(t *testing.T) {
	cv := mustTestCert(t, "/a/KEY/k1/self/v1")
	d := packet.Data{
		Name:     cv.Name(),
		MetaInfo: packet.MetaInfo{ContentType: packet.ContentTypeKey},
		Content:  []byte("pubkey"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			ValidityPeriod: &packet.ValidityPeriod{
				NotBefore: time.Now().Add(-time.Hour),
				NotAfter:  time.Now().Add(time.Hour),
			},
		}},
	}
	face := &fakeFace{behaviors: []func(func(packet.Data), func(), func(string)){
		func(onData func(packet.Data), _ func(), _ func(string)) { onData(d) },
	}}

	limiter := rate.NewLimiter(rate.Every(time.Hour), 4)
	st := storage.New(clock.NewOffset(nil))
	f := NewFromNetwork(st, face, limiter, func() backoff.BackOff { return &backoff.ZeroBackOff{} }, decodeFixture)

	req := &state.Request{Interest: packet.Interest{Name: cv.Name()}}
	dst := state.NewData(packet.Data{}, nil, nil)
	var got *cert.V2
	f.Fetch(context.Background(), req, dst, func(c *cert.V2, _ *state.State) { got = c })

	if got == nil || !got.Name().Equal(cv.Name()) {
		t.Fatalf("expected a request within burst capacity to pass straight through, got %v", got)
	}
}
