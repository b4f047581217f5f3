// Package cache implements CertificateCache (spec.md §4.2): a
// time-indexed container of certificates with bounded-lifetime eviction
// and prefix/Interest lookups.
//
// The eviction bookkeeping — an expiry timestamp kept alongside each
// entry, lazily swept rather than timer-driven — is grounded on
// pkg/webhook/registryauth/bounded_cache.go's ECRCredentialCache, which
// bounds AWS ECR credentials the same way. That cache is keyed by an
// opaque string and needs no ordering; this one additionally needs
// ordered "ceiling" lookups by Name, so the underlying index here is a
// sorted slice searched with sort.Search rather than bounded_cache's bare
// map — see DESIGN.md for why no ecosystem ordered-map library from the
// retrieved corpus fit this role.
package cache

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

type entry struct {
	cert          *cert.V2
	insertionTime time.Time
	removalTime   time.Time
}

// Cache is a CertificateCache. The zero value is not usable; construct
// with New.
type Cache struct {
	mu sync.Mutex

	clk         clock.Clock
	maxLifetime time.Duration

	byName map[string]*entry
	order  []name.Name // kept sorted by name.Compare

	// lru tracks access recency for size-bounded caches (maxEntries>0);
	// nil for an unbounded Cache. It never stores certificates itself,
	// only membership, so eviction under size pressure is handled by
	// evictLocked deleting from byName/order in lockstep.
	lru *lru.Cache[string, struct{}]

	logger *zap.SugaredLogger

	nextRefreshTime time.Time
	hasNextRefresh  bool
}

// New constructs an empty, size-unbounded Cache. maxLifetime bounds how
// long any entry may live regardless of its own certificate's notAfter.
func New(clk clock.Clock, maxLifetime time.Duration) *Cache {
	if clk == nil {
		clk = clock.System{}
	}
	return &Cache{
		clk:         clk,
		maxLifetime: maxLifetime,
		byName:      make(map[string]*entry),
		logger:      zap.NewNop().Sugar(),
	}
}

// SetLogger attaches l as the destination for this cache's Debug-level
// refresh logging. A nil logger is ignored, leaving the no-op default
// from New in place.
func (c *Cache) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		c.logger = l
	}
}

// NewBounded is New plus a least-recently-used entry cap: once maxEntries
// is exceeded, the least recently looked-up certificate is evicted
// regardless of its remaining lifetime. Intended for the unverified
// cache (spec.md §4.5), which is otherwise sized only by an attacker's
// willingness to offer never-to-be-verified certificates.
func NewBounded(clk clock.Clock, maxLifetime time.Duration, maxEntries int) *Cache {
	c := New(clk, maxLifetime)
	if maxEntries <= 0 {
		return c
	}
	l, err := lru.NewWithEvict[string, struct{}](maxEntries, func(key string, _ struct{}) {
		c.evictLocked(key)
	})
	if err != nil {
		// Only returned for a non-positive size, already excluded above.
		panic(err)
	}
	c.lru = l
	return c
}

// evictLocked removes key from byName/order. Called from the lru
// package's onEvicted callback, which fires not only on a genuine
// size-triggered eviction from within Add, but also when Delete/refresh
// call lru.Remove purely to reconcile the LRU index after removing the
// entry some other way; the byName check tells the two apart so only a
// real LRU eviction is logged.
func (c *Cache) evictLocked(key string) {
	if _, ok := c.byName[key]; !ok {
		return
	}
	delete(c.byName, key)
	for i, n := range c.order {
		if n.String() == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.logger.Debugw("cache evicted least-recently-used certificate", "name", key)
}

// Insert adds c to the cache. A certificate already expired at insertion
// time is silently skipped, per spec.md §4.2.
func (c *Cache) Insert(cv *cert.V2) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	vp := cv.ValidityPeriod()
	if !vp.NotAfter.After(now) {
		return
	}
	removal := vp.NotAfter
	if maxBy := now.Add(c.maxLifetime); maxBy.Before(removal) {
		removal = maxBy
	}

	key := cv.Name().String()
	if _, exists := c.byName[key]; !exists {
		c.insertSorted(cv.Name())
	}
	c.byName[key] = &entry{cert: cv, insertionTime: now, removalTime: removal}
	if c.lru != nil {
		c.lru.Add(key, struct{}{})
	}

	if !c.hasNextRefresh || removal.Before(c.nextRefreshTime) {
		c.nextRefreshTime = removal
		c.hasNextRefresh = true
	}
}

func (c *Cache) insertSorted(n name.Name) {
	i := sort.Search(len(c.order), func(i int) bool { return c.order[i].Compare(n) >= 0 })
	c.order = append(c.order, name.Name{})
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = n
}

// refresh evicts everything past its removal time and recomputes the
// next scheduled refresh, only when due — the "amortized O(n) only when
// the earliest-to-die entry expires" behavior spec.md §4.2 calls for.
// Caller must hold c.mu.
func (c *Cache) refresh() {
	now := c.clk.Now()
	if c.hasNextRefresh && now.Before(c.nextRefreshTime) {
		return
	}

	kept := c.order[:0:0]
	var expired []string
	var nextRefresh time.Time
	hasNext := false
	for _, n := range c.order {
		key := n.String()
		e := c.byName[key]
		if e == nil {
			continue
		}
		if !e.removalTime.After(now) {
			delete(c.byName, key)
			expired = append(expired, key)
			continue
		}
		kept = append(kept, n)
		if !hasNext || e.removalTime.Before(nextRefresh) {
			nextRefresh = e.removalTime
			hasNext = true
		}
	}
	c.order = kept
	c.nextRefreshTime = nextRefresh
	c.hasNextRefresh = hasNext

	// Reconcile the LRU index outside the loop above: evictLocked (fired
	// by Remove) walks c.order itself, which must already reflect kept.
	if c.lru != nil {
		for _, key := range expired {
			c.lru.Remove(key)
		}
	}

	if len(expired) > 0 {
		c.logger.Debugw("cache refresh evicted expired certificates", "count", len(expired), "names", expired)
	}
}

func (c *Cache) ceiling(n name.Name) int {
	return sort.Search(len(c.order), func(i int) bool { return c.order[i].Compare(n) >= 0 })
}

// FindByPrefix returns the certificate at the least name >= prefix, iff
// prefix is actually a prefix of that certificate's name.
func (c *Cache) FindByPrefix(prefix name.Name) *cert.V2 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()

	i := c.ceiling(prefix)
	if i >= len(c.order) {
		return nil
	}
	candidate := c.order[i]
	if !prefix.IsPrefixOf(candidate) {
		return nil
	}
	key := candidate.String()
	if c.lru != nil {
		c.lru.Get(key)
	}
	return c.byName[key].cert
}

// FindByInterest walks the ordered map from the ceiling of the Interest
// name, returning the first certificate still under that name which
// satisfies the Interest's selectors. ChildSelector is never honored
// (spec.md §4.2); onChildSelectorIgnored, if non-nil, is invoked once per
// call when the Interest specified one, so callers can log it themselves.
func (c *Cache) FindByInterest(i packet.Interest, childSelectorSet bool, onChildSelectorIgnored func()) *cert.V2 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()

	if childSelectorSet && onChildSelectorIgnored != nil {
		onChildSelectorIgnored()
	}

	now := c.clk.Now()
	idx := c.ceiling(i.Name)
	for ; idx < len(c.order); idx++ {
		candidate := c.order[idx]
		if !i.Name.IsPrefixOf(candidate) {
			break
		}
		key := candidate.String()
		e := c.byName[key]
		freshUntil := e.insertionTime.Add(e.cert.Data().MetaInfo.FreshnessPeriod)
		if i.Matches(e.cert.Data(), freshUntil, now) {
			if c.lru != nil {
				c.lru.Get(key)
			}
			return e.cert
		}
	}
	return nil
}

// Delete removes the entry named n, if any.
func (c *Cache) Delete(n name.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := n.String()
	if _, ok := c.byName[key]; !ok {
		return
	}
	delete(c.byName, key)
	for i, on := range c.order {
		if on.Equal(n) {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.lru != nil {
		c.lru.Remove(key)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName = make(map[string]*entry)
	c.order = nil
	c.hasNextRefresh = false
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Len reports the current entry count without triggering a refresh; used
// by tests asserting eviction happened lazily, not eagerly.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byName)
}
