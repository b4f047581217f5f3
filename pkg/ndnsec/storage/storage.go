// Package storage implements CertificateStorage (spec.md §4.4): a thin
// façade in front of a TrustAnchorContainer and two CertificateCaches
// (verified and unverified), giving the validator one place to ask
// "do I already trust this certificate" without knowing which of the
// three backing stores answered.
//
// Grounded on pkg/policy/policy.go's Source, which likewise fans a single
// resolve() call out across multiple backing representations (Data,
// Path, URL) and picks whichever is configured; here the fan-out is a
// fixed three-way read (anchors, verified cache, unverified cache)
// instead of a oneof.
package storage

import (
	"time"

	"go.uber.org/zap"

	"github.com/ndn-io/sec2/pkg/ndnsec/anchor"
	"github.com/ndn-io/sec2/pkg/ndnsec/cache"
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

// Default cache lifetimes per spec.md §4.4.
const (
	DefaultVerifiedCacheLifetime   = time.Hour
	DefaultUnverifiedCacheLifetime = 5 * time.Minute

	// DefaultUnverifiedCacheMaxEntries bounds the unverified cache by
	// count, not just time: unlike the verified cache, every entry here
	// was supplied by a peer ahead of any signature check, so its
	// natural lifetime alone doesn't stop a flood of never-to-be-
	// verified certificates from growing this cache without bound.
	DefaultUnverifiedCacheMaxEntries = 10000
)

// Storage is the CertificateStorage façade.
type Storage struct {
	clk clock.Clock

	anchors    *anchor.Container
	verified   *cache.Cache
	unverified *cache.Cache
}

// New constructs a Storage with the spec's default cache lifetimes. Pass
// a nil clock to use the production System clock; tests construct their
// own clock.Offset and pass it here so both caches and the anchor
// container move together under a single time-offset hook.
func New(clk clock.Clock) *Storage {
	if clk == nil {
		clk = clock.System{}
	}
	return &Storage{
		clk:        clk,
		anchors:    anchor.New(clk),
		verified:   cache.New(clk, DefaultVerifiedCacheLifetime),
		unverified: cache.NewBounded(clk, DefaultUnverifiedCacheLifetime, DefaultUnverifiedCacheMaxEntries),
	}
}

// Anchors exposes the backing TrustAnchorContainer, e.g. for wiring
// InsertStatic/InsertDynamic during configuration loading.
func (s *Storage) Anchors() *anchor.Container { return s.anchors }

// SetLogger attaches l to the anchor container and both caches, so their
// Debug-level reload/refresh logging reaches the same sink as the rest
// of a validation (spec.md's ambient logging requirement). A nil logger
// is ignored.
func (s *Storage) SetLogger(l *zap.SugaredLogger) {
	s.anchors.SetLogger(l)
	s.verified.SetLogger(l)
	s.unverified.SetLogger(l)
}

// FindTrustedCertificate looks for a certificate satisfying prefix among
// trust anchors first, then the verified cache — the two stores whose
// membership implies the certificate chain already validated (spec.md
// §4.4).
func (s *Storage) FindTrustedCertificate(prefix name.Name) (*cert.V2, error) {
	if cv, err := s.anchors.Find(prefix); err != nil || cv != nil {
		return cv, err
	}
	return s.verified.FindByPrefix(prefix), nil
}

// FindTrustedCertificateByInterest is FindTrustedCertificate's
// Interest-selector variant.
func (s *Storage) FindTrustedCertificateByInterest(i packet.Interest, childSelectorSet bool, onChildSelectorIgnored func()) (*cert.V2, error) {
	if cv, err := s.anchors.FindByInterest(i); err != nil || cv != nil {
		return cv, err
	}
	return s.unverifiedOrVerifiedByInterest(s.verified, i, childSelectorSet, onChildSelectorIgnored), nil
}

func (s *Storage) unverifiedOrVerifiedByInterest(c *cache.Cache, i packet.Interest, childSelectorSet bool, onChildSelectorIgnored func()) *cert.V2 {
	return c.FindByInterest(i, childSelectorSet, onChildSelectorIgnored)
}

// FindUnverifiedCertificateByInterest looks only in the unverified cache
// — the fetch path's first step (spec.md §4.5): a certificate already
// retrieved but not yet chain-verified is returned synchronously without
// re-fetching.
func (s *Storage) FindUnverifiedCertificateByInterest(i packet.Interest, childSelectorSet bool, onChildSelectorIgnored func()) *cert.V2 {
	return s.unverified.FindByInterest(i, childSelectorSet, onChildSelectorIgnored)
}

// IsCertificateKnown reports whether prefix is already present in any of
// the three backing stores (anchors, verified, unverified) — used to
// short-circuit re-fetching a certificate already in flight or already
// resolved (spec.md §4.4).
func (s *Storage) IsCertificateKnown(prefix name.Name) (bool, error) {
	if cv, err := s.anchors.Find(prefix); err != nil {
		return false, err
	} else if cv != nil {
		return true, nil
	}
	if s.verified.FindByPrefix(prefix) != nil {
		return true, nil
	}
	return s.unverified.FindByPrefix(prefix) != nil, nil
}

// CacheVerifiedCertificate inserts cv into the verified cache.
func (s *Storage) CacheVerifiedCertificate(cv *cert.V2) {
	s.verified.Insert(cv)
}

// CacheUnverifiedCertificate inserts cv into the unverified cache.
func (s *Storage) CacheUnverifiedCertificate(cv *cert.V2) {
	s.unverified.Insert(cv)
}

// LoadAnchor adds cv as a static trust anchor in groupID.
func (s *Storage) LoadAnchor(groupID string, cv *cert.V2) error {
	return s.anchors.InsertStatic(groupID, cv)
}

// LoadDynamicAnchor registers a dynamic (file or directory) trust-anchor
// group and runs its first refresh synchronously.
func (s *Storage) LoadDynamicAnchor(groupID, path string, refreshPeriod time.Duration, isDirectory bool, loader anchor.FileLoader) (*anchor.Group, error) {
	return s.anchors.InsertDynamic(groupID, path, refreshPeriod, isDirectory, loader)
}

// RemoveAnchor removes a single previously-loaded static anchor,
// restoring the anchor container to its state before that certificate
// was installed (spec.md §4.6, FromPib).
func (s *Storage) RemoveAnchor(cv *cert.V2) {
	s.anchors.RemoveStatic(cv)
}

// ResetAnchors clears every trust anchor and group. Intended for tests
// and for a policy hot-reload that fully replaces the trust configuration
// (spec.md §4.4).
func (s *Storage) ResetAnchors() {
	s.anchors.Clear()
}

// ResetVerifiedCertificates clears the verified cache only; unverified
// entries and anchors are untouched.
func (s *Storage) ResetVerifiedCertificates() {
	s.verified.Clear()
}

// VerifiedLen and UnverifiedLen expose cache sizes without triggering a
// sweep, for tests asserting eviction timing (spec.md §8 S10).
func (s *Storage) VerifiedLen() int   { return s.verified.Len() }
func (s *Storage) UnverifiedLen() int { return s.unverified.Len() }
