// Package replay implements the CommandInterestReplayTracker (spec.md
// §4.11): a bounded, time-windowed record of the last-seen timestamp per
// signing key, used to defend command Interests against replay.
//
// The bookkeeping shape — a map of live entries paired with a parallel
// ordering used to evict both by age and by count — is grounded directly
// on pkg/webhook/registryauth/bounded_cache.go's ECRCredentialCache,
// which bounds AWS ECR credentials behind a mutex with a TTL expiry map
// alongside an LRU index. This tracker additionally needs "remove from
// the head until under budget" semantics (oldest-refreshed first, not
// most-recently-used), so the ordering here is a plain slice rather than
// bounded_cache's github.com/hashicorp/golang-lru.Cache — see DESIGN.md.
package replay

import (
	"sync"
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
)

// Options parameterizes the tracker (spec.md §4.11 defaults).
type Options struct {
	GracePeriod    time.Duration
	MaxRecords     int // -1 = unbounded, 0 = tracking disabled
	RecordLifetime time.Duration
}

// DefaultOptions returns the spec's stated defaults: 120s grace, 1000
// records, 1h lifetime.
func DefaultOptions() Options {
	return Options{
		GracePeriod:    120 * time.Second,
		MaxRecords:     1000,
		RecordLifetime: time.Hour,
	}
}

type record struct {
	keyName       string
	timestamp     time.Time
	lastRefreshed time.Time
}

// Tracker is the CommandInterestReplayTracker.
type Tracker struct {
	mu   sync.Mutex
	clk  clock.Clock
	opts Options

	order []*record // insertion/last-refreshed order, oldest first
	byKey map[string]*record
}

// New constructs a Tracker with the given options and clock (clock may be
// nil for the production System clock).
func New(clk clock.Clock, opts Options) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	return &Tracker{
		clk:   clk,
		opts:  opts,
		byKey: make(map[string]*record),
	}
}

// cleanUp removes records older than RecordLifetime, then trims to
// MaxRecords from the head. Caller must hold t.mu.
func (t *Tracker) cleanUp() {
	now := t.clk.Now()
	i := 0
	for i < len(t.order) {
		r := t.order[i]
		if now.Sub(r.lastRefreshed) > t.opts.RecordLifetime {
			delete(t.byKey, r.keyName)
			i++
			continue
		}
		break
	}
	t.order = t.order[i:]

	if t.opts.MaxRecords >= 0 {
		for len(t.order) > t.opts.MaxRecords {
			r := t.order[0]
			delete(t.byKey, r.keyName)
			t.order = t.order[1:]
		}
	}
}

// CheckResult carries the outcome of CheckTimestamp plus the commit
// function to call once the command's signature has actually verified
// (spec.md §4.11 step 4: "register a post-success hook").
type CheckResult struct {
	accept bool
	err    *sec.Error
	commit func()
}

// OK reports whether the timestamp passed the replay check.
func (r CheckResult) OK() bool { return r.accept }

// Err returns the policy error when OK() is false.
func (r CheckResult) Err() *sec.Error { return r.err }

// Commit must be invoked only after the command Interest's signature has
// cryptographically verified; it registers the timestamp so future
// replays/reorders are rejected. Calling Commit on a failed CheckResult
// is a no-op.
func (r CheckResult) Commit() {
	if r.accept && r.commit != nil {
		r.commit()
	}
}

// CheckTimestamp implements spec.md §4.11's checkTimestamp algorithm.
// maxRecords == 0 disables tracking: every command is treated as initial.
func (t *Tracker) CheckTimestamp(keyName name.Name, timestamp time.Time) CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanUp()

	now := t.clk.Now()
	if timestamp.Before(now.Add(-t.opts.GracePeriod)) || timestamp.After(now.Add(t.opts.GracePeriod)) {
		return CheckResult{err: sec.New(sec.CodePolicyError, "command Interest timestamp outside grace window")}
	}

	key := keyName.String()
	if t.opts.MaxRecords != 0 {
		if r, ok := t.byKey[key]; ok && !timestamp.After(r.timestamp) {
			return CheckResult{err: sec.New(sec.CodePolicyError, "command Interest timestamp is not monotonically increasing")}
		}
	}

	return CheckResult{
		accept: true,
		commit: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.insertNewRecordLocked(key, timestamp)
		},
	}
}

// insertNewRecordLocked removes any existing record for key and appends a
// fresh one at lastRefreshed = now, establishing LRU order. Caller must
// hold t.mu. A MaxRecords of 0 means tracking is disabled entirely, so
// this is a no-op in that mode.
func (t *Tracker) insertNewRecordLocked(key string, timestamp time.Time) {
	if t.opts.MaxRecords == 0 {
		return
	}
	if old, ok := t.byKey[key]; ok {
		for i, r := range t.order {
			if r == old {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	r := &record{keyName: key, timestamp: timestamp, lastRefreshed: t.clk.Now()}
	t.byKey[key] = r
	t.order = append(t.order, r)
	t.cleanUp()
}

// Len reports the current record count, for tests asserting the LRU
// bound (spec.md §8 property 7).
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
