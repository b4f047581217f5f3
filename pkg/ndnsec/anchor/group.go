package anchor

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/clock"
)

// Errors returned synchronously to the caller (spec.md §7: "programmer
// errors... reported to the caller synchronously, not through the state
// machine").
var (
	ErrGroupKindMismatch = errors.New("anchor: group kind mismatch")
	ErrGroupExists       = errors.New("anchor: group id already exists")
	ErrArgumentError     = errors.New("anchor: refreshPeriod must be > 0")
)

// FileLoader decodes one certificate from file content. It is supplied
// by the caller so this package never depends on a TLV codec (out of
// scope per spec.md §1); in tests and the CLI it is typically backed by
// a PEM-certificate reader.
type FileLoader interface {
	// List returns the set of file paths a group should load: one path
	// for a dynamic-file group, every file in a directory for a
	// dynamic-directory group. A non-existent path yields an empty
	// slice, never an error, per spec.md §4.10.
	List(path string, isDirectory bool) ([]string, error)

	// Load decodes the certificate at path. A decode failure is reported
	// to the caller via the returned error; group refresh treats it as a
	// skip, not a fatal error (spec.md §4.10).
	Load(path string) (*cert.V2, error)
}

// Group is a TrustAnchorGroup (spec.md §4.3/§4.10).
type Group struct {
	id            string
	kind          Kind
	path          string
	refreshPeriod time.Duration
	loader        FileLoader

	owned map[string]bool // anchor-name-string -> owned by this group

	container *Container
	clk       clock.Clock

	expireTime time.Time
	hasExpire  bool
}

func (g *Group) ID() string   { return g.id }
func (g *Group) Kind() Kind   { return g.kind }
func (g *Group) IsDynamic() bool {
	return g.kind != KindStatic
}

// Refresh runs the group's lazy refresh algorithm directly, acquiring the
// owning container's lock. Static groups are a no-op.
func (g *Group) Refresh() error {
	if g.kind == KindStatic {
		return nil
	}
	g.container.mu.Lock()
	defer g.container.mu.Unlock()
	return g.refreshLocked(g.container)
}

// refreshLocked implements the five-step algorithm from spec.md §4.10.
// Caller must hold c.mu.
func (g *Group) refreshLocked(c *Container) error {
	now := g.clk.Now()
	if g.hasExpire && now.Before(g.expireTime) {
		return nil
	}
	g.expireTime = now.Add(g.refreshPeriod)
	g.hasExpire = true

	old := make(map[string]bool, len(g.owned))
	for k := range g.owned {
		old[k] = true
	}

	paths, err := g.loader.List(g.path, g.kind == KindDynamicDirectory)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	loaded := 0
	for _, p := range paths {
		cv, err := g.loader.Load(p)
		if err != nil {
			// File decoding errors are skipped, never fatal (spec.md
			// §4.10); logged here rather than returned since the caller
			// only sees the aggregate refreshAllLocked error, not this
			// per-file detail.
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", p, err))
			continue
		}
		key := cv.Name().String()
		if g.owned[key] {
			delete(old, key)
			continue
		}
		c.insertAnchorLocked(g.id, cv)
		g.owned[key] = true
		loaded++
	}

	for key := range old {
		g.evictOwnedLocked(c, key)
	}

	if merr != nil {
		c.logger.Debugw("anchor group reload skipped unreadable files", "group", g.id, "errors", merr.Errors)
	}
	c.logger.Debugw("anchor group reloaded", "group", g.id, "path", g.path, "loaded", loaded, "evicted", len(old))

	return nil
}

func (g *Group) evictOwnedLocked(c *Container, nameKey string) {
	delete(g.owned, nameKey)
	for _, n := range c.anchorOrder {
		if n.String() == nameKey {
			c.evictAnchorLocked(n)
			return
		}
	}
}
