package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

func mustCert(t *testing.T, n string) *cert.V2 {
	t.Helper()
	d := packet.Data{
		Name:     name.Parse(n),
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
	require.NoError(t, err, "constructing fixture certificate")
	return cv
}

func TestFindTrustedCertificatePrefersAnchorsOverVerifiedCache(t *testing.T) {
	st := New(clock.NewOffset(nil))
	anchor := mustCert(t, "/a/KEY/k1/self/v1")
	require.NoError(t, st.LoadAnchor("g1", anchor))
	st.CacheVerifiedCertificate(mustCert(t, "/a/KEY/k0/self/v1"))

	got, err := st.FindTrustedCertificate(name.Parse("/a"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Name().Equal(anchor.Name()))
}

func TestFindTrustedCertificateFallsBackToVerifiedCache(t *testing.T) {
	st := New(clock.NewOffset(nil))
	cv := mustCert(t, "/a/KEY/k1/self/v1")
	st.CacheVerifiedCertificate(cv)

	got, err := st.FindTrustedCertificate(name.Parse("/a"))
	if err != nil || got == nil || !got.Name().Equal(cv.Name()) {
		t.Fatalf("expected the verified cache hit, got %v err=%v", got, err)
	}
}

func TestIsCertificateKnownChecksAllThreeStores(t *testing.T) {
	st := New(clock.NewOffset(nil))
	anchor := mustCert(t, "/a/KEY/k1/self/v1")
	verified := mustCert(t, "/b/KEY/k1/self/v1")
	unverified := mustCert(t, "/c/KEY/k1/self/v1")

	require.NoError(t, st.LoadAnchor("g1", anchor))
	st.CacheVerifiedCertificate(verified)
	st.CacheUnverifiedCertificate(unverified)

	for _, n := range []string{"/a", "/b", "/c"} {
		known, err := st.IsCertificateKnown(name.Parse(n))
		if err != nil || !known {
			t.Errorf("expected %s to be known, got known=%v err=%v", n, known, err)
		}
	}
	known, err := st.IsCertificateKnown(name.Parse("/unrelated"))
	if err != nil || known {
		t.Errorf("expected /unrelated to be unknown, got known=%v err=%v", known, err)
	}
}

func TestFindUnverifiedCertificateByInterestOnlyLooksAtUnverified(t *testing.T) {
	st := New(clock.NewOffset(nil))
	verified := mustCert(t, "/a/KEY/k1/self/v1")
	st.CacheVerifiedCertificate(verified)

	i := packet.Interest{Name: name.Parse("/a")}
	if got := st.FindUnverifiedCertificateByInterest(i, false, nil); got != nil {
		t.Errorf("expected no match from the unverified cache, got %v", got)
	}
}

func TestRemoveAnchorRestoresPriorState(t *testing.T) {
	st := New(clock.NewOffset(nil))
	anchor := mustCert(t, "/a/KEY/k1/self/v1")
	require.NoError(t, st.LoadAnchor("g1", anchor))
	st.RemoveAnchor(anchor)

	got, err := st.FindTrustedCertificate(name.Parse("/a"))
	if err != nil || got != nil {
		t.Fatalf("expected the anchor to be gone, got %v err=%v", got, err)
	}
}

func TestResetAnchorsAndResetVerifiedCertificates(t *testing.T) {
	st := New(clock.NewOffset(nil))
	anchor := mustCert(t, "/a/KEY/k1/self/v1")
	verified := mustCert(t, "/b/KEY/k1/self/v1")
	require.NoError(t, st.LoadAnchor("g1", anchor))
	st.CacheVerifiedCertificate(verified)

	st.ResetVerifiedCertificates()
	if st.VerifiedLen() != 0 {
		t.Errorf("expected verified cache to be empty, got %d", st.VerifiedLen())
	}
	if got, _ := st.FindTrustedCertificate(name.Parse("/a")); got == nil {
		t.Error("expected anchors to survive ResetVerifiedCertificates")
	}

	st.ResetAnchors()
	if got, _ := st.FindTrustedCertificate(name.Parse("/a")); got != nil {
		t.Error("expected anchors to be cleared by ResetAnchors")
	}
}

func TestVerifiedAndUnverifiedLenTrackInsertions(t *testing.T) {
	st := New(clock.NewOffset(nil))
	st.CacheVerifiedCertificate(mustCert(t, "/a/KEY/k1/self/v1"))
	st.CacheUnverifiedCertificate(mustCert(t, "/b/KEY/k1/self/v1"))
	st.CacheUnverifiedCertificate(mustCert(t, "/c/KEY/k1/self/v1"))

	if st.VerifiedLen() != 1 {
		t.Errorf("VerifiedLen() = %d, want 1", st.VerifiedLen())
	}
	if st.UnverifiedLen() != 2 {
		t.Errorf("UnverifiedLen() = %d, want 2", st.UnverifiedLen())
	}
}
