// Package routecache implements the RPL route cache (spec Section 4.5): an
// idempotent set of installed routes reconciled with a FIB adapter.
//
// The cache is backed by github.com/gaissmai/bart's Table, a
// longest-prefix-match routing table, since routes are naturally keyed by
// target prefix (including the "default" route); [Cache.LookupNexthop]
// uses it for longest-prefix-match lookup.
package routecache

import (
	"net/netip"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/gaissmai/bart"
)

// defaultRoute represents RPL's "default" route target as the zero-length
// IPv6 prefix ::/0.
var defaultRoute = netip.MustParsePrefix("::/0")

// Route is an installed downward or default route.  Equality is over all
// four fields, matching spec Section 3.
type Route struct {
	// Target is the destination prefix, or [defaultRoute] for the default
	// route.
	Target netip.Prefix

	// NextHop is the next hop's link-local address.
	NextHop netip.Addr

	// NextHopIface is the outgoing interface name.
	NextHopIface string

	// OneHop reports whether NextHop is a direct (rank-1) neighbor rather
	// than a multi-hop downward route.  It is not part of the cache's
	// identity key (see fibKey).
	OneHop bool
}

// fibKey excludes OneHop, matching the Python original's to_tuple(), since
// FIB calls don't need it.
type fibKey struct {
	Target       netip.Prefix
	NextHop      netip.Addr
	NextHopIface string
}

func (r Route) key() fibKey {
	return fibKey{Target: r.Target, NextHop: r.NextHop, NextHopIface: r.NextHopIface}
}

// FIBAdapter installs and removes routes in the kernel routing table.  It
// is an external collaborator out of scope for this package (spec Section
// 1); Add failures are tolerated (spec Section 7 kind 4): the route is
// simply not recorded as installed.
type FIBAdapter interface {
	AddRoute(r Route) error
	RemoveRoute(r Route) error
}

// errSelfAssigned is returned by Add when a non-default route's target is
// an address assigned to this node (spec Section 4.5 invariant).
const errSelfAssigned errors.Error = "routecache: route target is an address assigned to this node"

// SelfCheck reports whether addr is currently assigned to this node. It is
// consulted by Add to enforce the "not for an address assigned to this
// node" invariant.
type SelfCheck func(addr netip.Addr) (assigned bool)

// Cache is a set of [Route]s, reconciled with a [FIBAdapter].
type Cache struct {
	fib  FIBAdapter
	self SelfCheck

	mu    sync.RWMutex
	byKey map[fibKey]Route
	idx   *bart.Table[fibKey]
}

// New builds an empty Cache.
func New(fib FIBAdapter, self SelfCheck) (c *Cache) {
	return &Cache{
		fib:   fib,
		self:  self,
		byKey: make(map[fibKey]Route),
		idx:   &bart.Table[fibKey]{},
	}
}

// Add installs r if not already present.  It reports whether the cache
// changed.  Adding a route already present is a no-op, matching the
// idempotence of the Python original's add_route.
func (c *Cache) Add(r Route) (changed bool, err error) {
	if r.Target != defaultRoute && c.self != nil && c.self(r.Target.Addr()) {
		return false, errSelfAssigned
	}

	k := r.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byKey[k]; ok {
		return false, nil
	}

	// Best-effort: the kernel call may fail transiently; the route is
	// recorded only if it succeeds (spec Section 7 kind 4).
	if err = c.fib.AddRoute(r); err != nil {
		return false, errors.Annotate(err, "installing route: %w")
	}

	c.byKey[k] = r
	c.idx.Insert(r.Target, k)

	return true, nil
}

// Remove withdraws r if present.  It reports whether the cache changed.
// Removing an absent route is a no-op and tolerates the FIB adapter
// reporting "not found".
func (c *Cache) Remove(r Route) (changed bool) {
	k := r.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.byKey[k]
	if !ok {
		return false
	}

	// Removal failures (including "not found") are tolerated; the cache
	// entry is dropped regardless so the two stay consistent.
	_ = c.fib.RemoveRoute(stored)

	delete(c.byKey, k)
	c.idx.Delete(r.Target)

	return true
}

// AddRoutes adds every route in rs, returning the subset that actually
// changed the cache.
func (c *Cache) AddRoutes(rs []Route) (added []Route) {
	for _, r := range rs {
		if changed, err := c.Add(r); err == nil && changed {
			added = append(added, r)
		}
	}

	return added
}

// RemoveRoutes removes every route in rs, returning the subset that
// actually changed the cache.
func (c *Cache) RemoveRoutes(rs []Route) (removed []Route) {
	for _, r := range rs {
		if c.Remove(r) {
			removed = append(removed, r)
		}
	}

	return removed
}

// LookupNexthop returns the longest-prefix-match route for target, if any.
func (c *Cache) LookupNexthop(target netip.Addr) (r Route, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.idx.Lookup(target)
	if !ok {
		return Route{}, false
	}

	return c.byKey[k], true
}

// RemoveNexthop removes every route whose next hop is nextHop, e.g. when a
// neighbor is evicted.  It returns the removed routes.
func (c *Cache) RemoveNexthop(nextHop netip.Addr) (removed []Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, r := range c.byKey {
		if r.NextHop != nextHop {
			continue
		}

		_ = c.fib.RemoveRoute(r)
		delete(c.byKey, k)
		c.idx.Delete(r.Target)
		removed = append(removed, r)
	}

	return removed
}

// EmptyCache removes every route from the cache, draining it through the
// FIB adapter.  Used on shutdown (spec Section 5).
func (c *Cache) EmptyCache() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, r := range c.byKey {
		_ = c.fib.RemoveRoute(r)
		delete(c.byKey, k)
		c.idx.Delete(r.Target)
	}
}

// Routes returns a snapshot of every route currently in the cache.
func (c *Cache) Routes() (rs []Route) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rs = make([]Route, 0, len(c.byKey))
	for _, r := range c.byKey {
		rs = append(rs, r)
	}

	return rs
}

// DefaultTarget returns the prefix representing the "default" route.
func DefaultTarget() netip.Prefix { return defaultRoute }
