package state

import (
	"testing"
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
)

// fakeProvider lets tests control signature verification without real
// keys: a signature "value" equal to the expected marker verifies.
type fakeProvider struct {
	accept map[string]bool // keyed by string(sig.Value)
}

func (fakeProvider) Sha256(data []byte) [32]byte { return [32]byte{} }

func (f fakeProvider) VerifySignature(_ packet.SignatureType, _ []byte, _ []byte, sig []byte) error {
	if f.accept[string(sig)] {
		return nil
	}
	return sec.New(sec.CodeInvalidSignature, "fake rejection")
}

func mustCert(t *testing.T, n string, sigValue string) *cert.V2 {
	t.Helper()
	d := packet.Data{
		Name: name.Parse(n),
		MetaInfo: packet.MetaInfo{
			ContentType: packet.ContentTypeKey,
		},
		Content: []byte("pubkey"),
		Signature: packet.Signature{
			Info: packet.SignatureInfo{
				ValidityPeriod: &packet.ValidityPeriod{
					NotBefore: time.Now().Add(-time.Hour),
					NotAfter:  time.Now().Add(time.Hour),
				},
			},
			Value: []byte(sigValue),
		},
	}
	cv, err := cert.Decode(d)
	if err != nil {
		t.Fatalf("decoding fixture certificate: %v", err)
	}
	return cv
}

func TestFailIsIdempotent(t *testing.T) {
	var calls int
	s := NewData(packet.Data{}, nil, func(packet.Data, *sec.Error) { calls++ })

	s.Fail(sec.New(sec.CodeLoopDetected, "first"))
	s.Fail(sec.New(sec.CodeLoopDetected, "second"))
	s.BypassValidation()

	if calls != 1 {
		t.Fatalf("expected exactly one failure callback invocation, got %d", calls)
	}
	if s.Outcome() != Failure {
		t.Errorf("expected terminal outcome Failure, got %v", s.Outcome())
	}
}

func TestBypassValidationFiresSuccessOnce(t *testing.T) {
	var calls int
	s := NewData(packet.Data{}, func(packet.Data) { calls++ }, nil)
	s.BypassValidation()
	s.BypassValidation()
	if calls != 1 {
		t.Fatalf("expected exactly one success callback invocation, got %d", calls)
	}
}

func TestHasSeenCertificateNameDetectsLoop(t *testing.T) {
	s := NewData(packet.Data{}, nil, nil)
	n := name.Parse("/alice/KEY/k1/self/v1")
	if s.HasSeenCertificateName(n) {
		t.Fatal("first sighting should not be reported as already seen")
	}
	if !s.HasSeenCertificateName(n) {
		t.Fatal("second sighting of the same name should be reported as already seen")
	}
}

func TestVerifyCertificateChainSuccess(t *testing.T) {
	trusted := mustCert(t, "/root/KEY/k0/self/v1", "good")
	mid := mustCert(t, "/alice/KEY/k1/root/v1", "good")

	s := NewData(packet.Data{}, nil, nil)
	s.AddCertificate(mid)

	provider := fakeProvider{accept: map[string]bool{"good": true}}
	bottom := s.VerifyCertificateChain(provider, trusted)
	if bottom == nil {
		t.Fatal("expected the chain to verify")
	}
	if !bottom.Name().Equal(mid.Name()) {
		t.Errorf("expected bottom to be %s, got %s", mid.Name(), bottom.Name())
	}
	if s.HasOutcome() {
		t.Error("chain verification alone must not set a terminal outcome")
	}
}

func TestVerifyCertificateChainFailureTruncatesAndFails(t *testing.T) {
	trusted := mustCert(t, "/root/KEY/k0/self/v1", "good")
	bad := mustCert(t, "/alice/KEY/k1/root/v1", "bad")

	s := NewData(packet.Data{}, nil, nil)
	s.AddCertificate(bad)

	provider := fakeProvider{accept: map[string]bool{"good": true}}
	bottom := s.VerifyCertificateChain(provider, trusted)
	if bottom != nil {
		t.Fatal("expected nil on verification failure")
	}
	if s.Outcome() != Failure {
		t.Errorf("expected Failure outcome, got %v", s.Outcome())
	}
	if len(s.Chain()) != 0 {
		t.Errorf("expected the unverified tail to be truncated, got chain length %d", len(s.Chain()))
	}
}

func TestVerifyOriginalPacketDataSuccessAndFailure(t *testing.T) {
	trusted := mustCert(t, "/root/KEY/k0/self/v1", "good")
	provider := fakeProvider{accept: map[string]bool{"good": true}}

	d := packet.Data{Name: name.Parse("/alice/data1"), Signature: packet.Signature{Value: []byte("good")}}
	var accepted bool
	s := NewData(d, func(packet.Data) { accepted = true }, nil)
	s.VerifyOriginalPacketData(provider, trusted)
	if !accepted || s.Outcome() != Success {
		t.Fatalf("expected successful verification, accepted=%v outcome=%v", accepted, s.Outcome())
	}

	dBad := packet.Data{Name: name.Parse("/alice/data1"), Signature: packet.Signature{Value: []byte("bad")}}
	var failed *sec.Error
	s2 := NewData(dBad, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	s2.VerifyOriginalPacketData(provider, trusted)
	if failed == nil || failed.Code != sec.CodeInvalidSignature {
		t.Fatalf("expected CodeInvalidSignature failure, got %v", failed)
	}
}

func TestAddSuccessHookFiresOnlyOnCryptographicSuccess(t *testing.T) {
	trusted := mustCert(t, "/root/KEY/k0/self/v1", "good")
	provider := fakeProvider{accept: map[string]bool{"good": true}}

	d := packet.Data{Name: name.Parse("/alice/data1"), Signature: packet.Signature{Value: []byte("bad")}}
	var hookFired bool
	s := NewData(d, nil, nil)
	s.AddSuccessHook(func() { hookFired = true })
	s.VerifyOriginalPacketData(provider, trusted)
	if hookFired {
		t.Error("success hook must not fire when verification fails")
	}

	d2 := packet.Data{Name: name.Parse("/alice/data2"), Signature: packet.Signature{Value: []byte("good")}}
	s2 := NewData(d2, nil, nil)
	s2.AddSuccessHook(func() { hookFired = true })
	s2.VerifyOriginalPacketData(provider, trusted)
	if !hookFired {
		t.Error("expected success hook to fire on cryptographic success")
	}
}
