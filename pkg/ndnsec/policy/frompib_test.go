package policy

import (
	"time"

	"testing"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
	"github.com/ndn-io/sec2/pkg/ndnsec/state"
	"github.com/ndn-io/sec2/pkg/ndnsec/storage"
)

func mustCertForKey(t *testing.T, keyName string) *cert.V2 {
	t.Helper()
	d := packet.Data{
		Name:     name.Parse(keyName),
		MetaInfo: packet.MetaInfo{ContentType: packet.ContentTypeKey},
		Content:  []byte("pubkey"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			ValidityPeriod: &packet.ValidityPeriod{
				NotBefore: time.Now().Add(-time.Hour),
				NotAfter:  time.Now().Add(time.Hour),
			},
		}},
	}
	cv, err := cert.Decode(d)
	if err != nil {
		t.Fatalf("constructing fixture certificate: %v", err)
	}
	return cv
}

type fakePib struct {
	byKey map[string]*cert.V2
}

func (p fakePib) DefaultCertificateForKey(keyName name.Name) (*cert.V2, error) {
	cv, ok := p.byKey[keyName.String()]
	if !ok {
		return nil, nil
	}
	return cv, nil
}

func TestFromPibRequestsDefaultCertificateAndAnchorsTransiently(t *testing.T) {
	keyName := "/alice/KEY/k1"
	cv := mustCertForKey(t, keyName+"/self/v1")
	pib := fakePib{byKey: map[string]*cert.V2{keyName: cv}}
	st := storage.New(clock.NewOffset(nil))
	p := NewFromPib(pib, st, nil)

	d := packet.Data{
		Name: name.Parse("/alice/data1"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			KeyLocator: packet.KeyLocator{Type: packet.KeyLocatorTypeKeyName, Name: name.Parse(keyName)},
		}},
	}
	var req *state.Request
	dst := state.NewData(d, nil, nil)
	p.CheckPolicyData(d, dst, func(r *state.Request, _ *state.State) { req = r })

	if req == nil || !req.Interest.Name.Equal(cv.Name()) {
		t.Fatalf("expected a request for the PIB's default certificate %s, got %v", cv.Name(), req)
	}
	if !req.Interest.MustBeFresh {
		t.Error("expected the certificate request to require freshness")
	}
	if req.RetriesLeft != -1 {
		t.Errorf("expected the fetcher's default retry budget sentinel (-1), got %d", req.RetriesLeft)
	}

	found, err := st.FindTrustedCertificate(cv.Name())
	if err != nil || found == nil {
		t.Fatalf("expected the default certificate to be transiently anchored, got %v err=%v", found, err)
	}

	dst.BypassValidation()
	found, err = st.FindTrustedCertificate(cv.Name())
	if err != nil {
		t.Fatalf("unexpected error after success-hook removal: %v", err)
	}
	if found != nil {
		t.Error("expected the transient anchor to be removed once verification succeeded")
	}
}

func TestFromPibFailsWhenPibHasNoDefaultCertificate(t *testing.T) {
	pib := fakePib{byKey: map[string]*cert.V2{}}
	st := storage.New(clock.NewOffset(nil))
	p := NewFromPib(pib, st, nil)

	d := packet.Data{
		Name: name.Parse("/alice/data1"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			KeyLocator: packet.KeyLocator{Type: packet.KeyLocatorTypeKeyName, Name: name.Parse("/alice/KEY/k1")},
		}},
	}
	var failed *sec.Error
	dst := state.NewData(d, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	p.CheckPolicyData(d, dst, func(*state.Request, *state.State) {
		t.Fatal("continuation should not be reached when the PIB has no default certificate")
	})
	if failed == nil || failed.Code != sec.CodeCannotRetrieveCertificate {
		t.Fatalf("expected CodeCannotRetrieveCertificate, got %v", failed)
	}
}

func TestFromPibRejectsNonKeyNameLocator(t *testing.T) {
	pib := fakePib{byKey: map[string]*cert.V2{}}
	st := storage.New(clock.NewOffset(nil))
	p := NewFromPib(pib, st, nil)

	d := packet.Data{
		Name: name.Parse("/alice/data1"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			KeyLocator: packet.KeyLocator{Type: packet.KeyLocatorTypeKeyDigest},
		}},
	}
	var failed *sec.Error
	dst := state.NewData(d, nil, func(_ packet.Data, e *sec.Error) { failed = e })
	p.CheckPolicyData(d, dst, func(*state.Request, *state.State) {
		t.Fatal("continuation should not be reached for a KEYDIGEST locator")
	})
	if failed == nil || failed.Code != sec.CodeInvalidKeyLocator {
		t.Fatalf("expected CodeInvalidKeyLocator, got %v", failed)
	}
}

func TestFromPibCheckPolicyInterestUsesDecodedKeyLocator(t *testing.T) {
	keyName := "/alice/KEY/k1"
	cv := mustCertForKey(t, keyName+"/self/v1")
	pib := fakePib{byKey: map[string]*cert.V2{keyName: cv}}
	st := storage.New(clock.NewOffset(nil))
	p := NewFromPib(pib, st, fakeDecoder(name.Parse(keyName)))

	i := packet.Interest{Name: signedInterestName("/alice/cmd1", time.Now())}
	var req *state.Request
	ist := state.NewInterest(i, nil, nil)
	p.CheckPolicyInterest(i, ist, func(r *state.Request, _ *state.State) { req = r })
	if req == nil || !req.Interest.Name.Equal(cv.Name()) {
		t.Fatalf("expected a request for %s, got %v", cv.Name(), req)
	}
}
