// Package anchor implements TrustAnchorContainer and the three
// TrustAnchorGroup variants from spec.md §4.3: static, dynamic-file, and
// dynamic-directory.
//
// The container's refresh-on-lookup shape and its per-source loading
// (explicit insert vs. a refreshable file/directory path) are grounded on
// pkg/policy/policy.go's Source type, which resolves a policy body from
// exactly one of Data/Path/URL and is itself inspired by the teacher's
// TUF trust-root reconciler (pkg/reconciler/trustroot/trustroot.go, not
// kept here — see DESIGN.md) refreshing a root of trust from a mirror on
// a schedule.
package anchor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

// Kind distinguishes the three group variants.
type Kind int

const (
	KindStatic Kind = iota
	KindDynamicFile
	KindDynamicDirectory
)

// Container holds a name-ordered anchor map and a groupId -> group map,
// per spec.md §4.3.
type Container struct {
	mu sync.Mutex

	clk clock.Clock

	anchors      map[string]*cert.V2
	anchorOrder  []name.Name
	groups       map[string]*Group
	ownerOfName  map[string]string // anchor name string -> owning group id

	logger *zap.SugaredLogger
}

// New constructs an empty Container.
func New(clk clock.Clock) *Container {
	if clk == nil {
		clk = clock.System{}
	}
	return &Container{
		clk:         clk,
		anchors:     make(map[string]*cert.V2),
		groups:      make(map[string]*Group),
		ownerOfName: make(map[string]string),
		logger:      zap.NewNop().Sugar(),
	}
}

// SetLogger attaches l as the destination for this container's
// Debug-level anchor-reload logging. A nil logger is ignored.
func (c *Container) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		c.logger = l
	}
}

// InsertStatic adds c to the static group groupId, creating the group if
// it does not yet exist. Re-inserting the same name into the same group
// is a no-op (idempotent, per spec.md §4.3). Inserting into an existing
// dynamic group fails with GroupKindMismatch.
func (c *Container) InsertStatic(groupID string, cv *cert.V2) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupID]
	if !ok {
		g = &Group{id: groupID, kind: KindStatic, owned: map[string]bool{}}
		c.groups[groupID] = g
	} else if g.kind != KindStatic {
		return ErrGroupKindMismatch
	}

	c.insertAnchorLocked(groupID, cv)
	g.owned[cv.Name().String()] = true
	return nil
}

// InsertDynamic creates a dynamic group (file or directory source) with
// the given id, path, and refresh period, and runs its first refresh
// immediately (spec.md §4.10, "on construction... immediately runs one
// refresh"). Inserting a dynamic group with an id already in use fails
// GroupExists; a non-positive refreshPeriod fails ArgumentError.
func (c *Container) InsertDynamic(groupID, path string, refreshPeriod time.Duration, isDirectory bool, loader FileLoader) (*Group, error) {
	c.mu.Lock()
	if _, exists := c.groups[groupID]; exists {
		c.mu.Unlock()
		return nil, ErrGroupExists
	}
	if refreshPeriod <= 0 {
		c.mu.Unlock()
		return nil, ErrArgumentError
	}
	kind := KindDynamicFile
	if isDirectory {
		kind = KindDynamicDirectory
	}
	g := &Group{
		id:            groupID,
		kind:          kind,
		path:          path,
		refreshPeriod: refreshPeriod,
		loader:        loader,
		owned:         map[string]bool{},
		container:     c,
		clk:           c.clk,
	}
	c.groups[groupID] = g
	c.mu.Unlock()

	return g, g.Refresh()
}

// RemoveStatic removes a single previously-inserted static anchor by
// name. Used by policies that install a transient anchor for the
// duration of a single certificate request (spec.md §4.6, FromPib) and
// must restore prior state afterward.
func (c *Container) RemoveStatic(cv *cert.V2) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictAnchorLocked(cv.Name())
}

// insertAnchorLocked inserts or replaces an anchor and records its owner.
// Caller must hold c.mu.
func (c *Container) insertAnchorLocked(groupID string, cv *cert.V2) {
	key := cv.Name().String()
	if _, exists := c.anchors[key]; !exists {
		i := sort.Search(len(c.anchorOrder), func(i int) bool { return c.anchorOrder[i].Compare(cv.Name()) >= 0 })
		c.anchorOrder = append(c.anchorOrder, name.Name{})
		copy(c.anchorOrder[i+1:], c.anchorOrder[i:])
		c.anchorOrder[i] = cv.Name()
	}
	c.anchors[key] = cv
	c.ownerOfName[key] = groupID
}

// evictAnchorLocked removes an anchor entirely (used by dynamic refresh
// when a previously-owned file disappears). Caller must hold c.mu.
func (c *Container) evictAnchorLocked(n name.Name) {
	key := n.String()
	if _, ok := c.anchors[key]; !ok {
		return
	}
	delete(c.anchors, key)
	delete(c.ownerOfName, key)
	for i, on := range c.anchorOrder {
		if on.Equal(n) {
			c.anchorOrder = append(c.anchorOrder[:i], c.anchorOrder[i+1:]...)
			break
		}
	}
}

func (c *Container) refreshAllLocked() error {
	var merr *multierror.Error
	for _, g := range c.groups {
		if g.kind == KindStatic {
			continue
		}
		if err := g.refreshLocked(c); err != nil {
			c.logger.Debugw("anchor group reload failed", "group", g.id, "error", err)
			merr = multierror.Append(merr, fmt.Errorf("group %s: %w", g.id, err))
		}
	}
	return merr.ErrorOrNil()
}

// Find locates the anchor at the ceiling of prefix, refreshing dynamic
// groups first (spec.md §4.3).
func (c *Container) Find(prefix name.Name) (*cert.V2, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshAllLocked(); err != nil {
		return nil, err
	}
	i := sort.Search(len(c.anchorOrder), func(i int) bool { return c.anchorOrder[i].Compare(prefix) >= 0 })
	if i >= len(c.anchorOrder) {
		return nil, nil
	}
	candidate := c.anchorOrder[i]
	if !prefix.IsPrefixOf(candidate) {
		return nil, nil
	}
	return c.anchors[candidate.String()], nil
}

// FindByInterest locates the first anchor at-or-after the Interest's name
// that satisfies its selectors.
func (c *Container) FindByInterest(i packet.Interest) (*cert.V2, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshAllLocked(); err != nil {
		return nil, err
	}
	now := c.clk.Now()
	start := sort.Search(len(c.anchorOrder), func(j int) bool { return c.anchorOrder[j].Compare(i.Name) >= 0 })
	for ; start < len(c.anchorOrder); start++ {
		candidate := c.anchorOrder[start]
		if !i.Name.IsPrefixOf(candidate) {
			break
		}
		cv := c.anchors[candidate.String()]
		freshUntil := now.Add(cv.Data().MetaInfo.FreshnessPeriod)
		if i.Matches(cv.Data(), freshUntil, now) {
			return cv, nil
		}
	}
	return nil, nil
}

// Clear removes every anchor and group (spec.md §4.3, "never removed
// except by full clear()").
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchors = make(map[string]*cert.V2)
	c.anchorOrder = nil
	c.groups = make(map[string]*Group)
	c.ownerOfName = make(map[string]string)
}

// Size returns the number of anchors currently loaded, without
// triggering a dynamic-group refresh; useful in tests asserting refresh
// timing precisely (spec.md §8 S10).
func (c *Container) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.anchors)
}
