// Package neighbor implements the RPL neighbor cache (spec Section 4.8):
// the set of nodes heard over DIO messages, their parent-set computation,
// and preferred-parent selection.
//
// A DODAG version is referenced through the [DODAGHandle] interface rather
// than a concrete type, so this package never imports package dodag; package
// dodag instead imports this one and implements [DODAGHandle] on its
// version type. This keeps the parent/child relationship one-directional
// instead of the cyclic back-pointers the Python original relies on
// (design note on handle-based ownership).
package neighbor

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"rpld/internal/rpl/lollipop"
	"rpld/internal/rpl/of0"
	"rpld/internal/rpl/routecache"
	"github.com/AdguardTeam/golibs/errors"
	"log/slog"
)

// DODAGKey identifies a single DODAG version, value-comparable the way the
// Python original compares DODAG objects (by instance, DODAG ID and
// version), not by object identity.
type DODAGKey struct {
	InstanceID uint8
	DODAGID    netip.Addr
	Version    lollipop.Counter
}

// DODAGHandle is the subset of DODAG-version state the neighbor cache reads
// and mutates. Package dodag's version type implements this.
type DODAGHandle interface {
	Key() DODAGKey
	InstanceID() uint8
	OCP() uint16
	Grounded() bool
	Prf() uint8

	Rank() uint16
	SetRank(rank uint16)
	DAGRank(rank uint16) uint16
	ComputeRankIncrease(parentRank uint16) uint16
	MaxRankIncrease() uint16
	LowestRankAdvertised() uint16

	Active() bool
	SetActive(active bool)

	PreferredParent() *Node
	SetPreferredParent(n *Node)

	DownwardRoutesGet() []routecache.Route

	// HearDIOInconsistent resets this DODAG's DIO Trickle timer to Imin.
	HearDIOInconsistent()
}

// Node is a neighbor heard over DIO messages: one entry per
// (interface, address, DODAG version) triplet.
type Node struct {
	Iface   string
	Address netip.Addr
	DODAG   DODAGHandle
	Rank    uint16
	DTSN    lollipop.Counter

	Preferred bool
	LastDIO   time.Time
}

func (n *Node) candidate() of0.Candidate {
	return of0.Candidate{
		InstanceID: n.DODAG.InstanceID(),
		OCP:        n.DODAG.OCP(),
		DODAGID:    n.DODAG.Key().DODAGID,
		Version:    n.DODAG.Key().Version,
		Grounded:   n.DODAG.Grounded(),
		Prf:        n.DODAG.Prf(),
		Rank:       n.DODAG.ComputeRankIncrease(n.Rank),
		Preferred:  n.Preferred,
		LastDIO:    n.LastDIO,
	}
}

// RouteInstaller is the route-cache surface the neighbor cache needs to
// reconcile the default route when the preferred parent changes.
// *routecache.Cache satisfies this.
type RouteInstaller interface {
	Add(r routecache.Route) (changed bool, err error)
	Remove(r routecache.Route) (changed bool)
	AddRoutes(rs []routecache.Route) (added []routecache.Route)
	RemoveRoutes(rs []routecache.Route) (removed []routecache.Route)
	RemoveNexthop(nextHop netip.Addr) (removed []routecache.Route)
}

// Cache is the set of known neighbors plus preferred/backup parent state.
type Cache struct {
	logger *slog.Logger
	routes RouteInstaller

	mu        sync.RWMutex
	cache     []*Node
	parents   []*Node
	preferred *Node
}

// New builds an empty Cache.
func New(logger *slog.Logger, routes RouteInstaller) (c *Cache) {
	return &Cache{logger: logger, routes: routes}
}

// RegisterNode registers or refreshes a neighbor. If a node already exists
// for this (iface, address, dodag) triplet its rank and DTSN are updated in
// place, preserving its identity (so preferred-parent tracking by pointer
// stays valid); otherwise a new Node is appended.
func (c *Cache) RegisterNode(
	iface string,
	address netip.Addr,
	dodag DODAGHandle,
	rank uint16,
	dtsn uint8,
) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.cache {
		if n.Iface == iface && n.Address == address && n.DODAG.Key() == dodag.Key() {
			n.Rank = rank
			n.DTSN = n.DTSN.Add(int(dtsn) - n.DTSN.Val())
			n.LastDIO = time.Now()

			return
		}
	}

	dtsnCounter, err := lollipop.New(int(dtsn))
	if err != nil {
		dtsnCounter = lollipop.NewDefault()
	}

	n := &Node{
		Iface:   iface,
		Address: address,
		DODAG:   dodag,
		Rank:    rank,
		DTSN:    dtsnCounter,
		LastDIO: time.Now(),
	}
	c.cache = append(c.cache, n)

	c.logger.Debug("registered neighbor", "address", address, "iface", iface, "rank", rank)
}

// GetNode returns the matching Node, if any.
func (c *Cache) GetNode(iface string, address netip.Addr, dodag DODAGHandle) (n *Node, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, n := range c.cache {
		if n.Iface == iface && n.Address == address && n.DODAG.Key() == dodag.Key() {
			return n, true
		}
	}

	return nil, false
}

// ComputeDIOParents returns the subset of neighs whose DAGRank is strictly
// less than the node's own current DAGRank within their DODAG: the set of
// candidates usable as a parent.
func ComputeDIOParents(neighs []*Node) (parents []*Node) {
	for _, n := range neighs {
		if n.DODAG.DAGRank(n.DODAG.Rank()) > n.DODAG.DAGRank(n.Rank) {
			parents = append(parents, n)
		}
	}

	return parents
}

func sortParents(parents []*Node) {
	sort.SliceStable(parents, func(i, j int) bool {
		cmp, err := of0.Compare(parents[i].candidate(), parents[j].candidate())
		if err != nil {
			return false
		}

		return cmp < 0
	})
}

// RankIncreaseIsLegit reports whether adopting node as parent keeps the
// resulting rank within dodag's configured MaxRankIncrease of the lowest
// rank ever advertised for it (RFC 6550 Section 8.2.2.4). MaxRankIncrease
// of 0 disables the check.
func RankIncreaseIsLegit(n *Node) (ok bool) {
	d := n.DODAG
	if d.MaxRankIncrease() == 0 {
		return true
	}

	rank := d.ComputeRankIncrease(n.Rank)

	return int(rank) <= int(d.LowestRankAdvertised())+int(d.MaxRankIncrease())
}

// setPreferred installs parents[0] (if any) as the globally preferred
// parent, reconciling the default route and any downward routes affected
// by a DODAG switch. It returns whether the selection terminated: false
// means the caller should drop parents[0] and retry, mirroring the retry
// loop in [Cache.UpdateDIOParent].
func (c *Cache) setPreferred(parents []*Node) (done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(parents) == 0 {
		if c.preferred != nil {
			c.routes.Remove(defaultRouteVia(c.preferred))
			c.preferred.Preferred = false
			c.preferred = nil
		}

		return true
	}

	next := parents[0]
	if next == c.preferred {
		return true
	}

	c.logger.Info("new DIO parent selected", "address", next.Address)

	if c.preferred != nil {
		c.routes.Remove(defaultRouteVia(c.preferred))
		c.preferred.Preferred = false

		if next.DODAG.Key() != c.preferred.DODAG.Key() {
			removed := diffRoutes(c.preferred.DODAG.DownwardRoutesGet(), next.DODAG.DownwardRoutesGet())
			added := diffRoutes(next.DODAG.DownwardRoutesGet(), c.preferred.DODAG.DownwardRoutesGet())
			c.routes.RemoveRoutes(removed)
			c.routes.AddRoutes(added)
		} else if next.DODAG.DAGRank(next.Rank) > next.DODAG.DAGRank(c.preferred.Rank) {
			c.logger.Info("new parent has a higher rank than the previous preferred parent, poisoning")
			c.preferred.DODAG.SetRank(of0.InfiniteRank)
			c.preferred = nil

			return false
		}
	}

	if active := c.activeDODAGAmong(parents); active != nil {
		active.SetActive(false)
	}

	next.Preferred = true
	next.DODAG.SetActive(true)

	if c.preferred == nil || next.DODAG.Key() != c.preferred.DODAG.Key() {
		next.DODAG.HearDIOInconsistent()
	}

	c.preferred = next

	if _, err := c.routes.Add(defaultRouteVia(next)); err != nil {
		c.logger.Debug("installing default route failed", "error", errors.Annotate(err, "default route: %w"))
	}

	return true
}

func (c *Cache) activeDODAGAmong(parents []*Node) (active DODAGHandle) {
	for _, p := range parents {
		if p.DODAG.Active() {
			return p.DODAG
		}
	}

	return nil
}

func defaultRouteVia(n *Node) routecache.Route {
	return routecache.Route{
		Target:       routecache.DefaultTarget(),
		NextHop:      n.Address,
		NextHopIface: n.Iface,
		OneHop:       true,
	}
}

func diffRoutes(a, b []routecache.Route) (diff []routecache.Route) {
	inB := make(map[routecache.Route]bool, len(b))
	for _, r := range b {
		inB[r] = true
	}

	for _, r := range a {
		if !inB[r] {
			diff = append(diff, r)
		}
	}

	return diff
}

// GetPreferred returns the current globally preferred parent, or nil.
func (c *Cache) GetPreferred() (n *Node) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.preferred
}

// GetParentList returns the current parent set across all DODAGs.
func (c *Cache) GetParentList() (parents []*Node) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.parents
}

// GetNeighborList returns every known neighbor.
func (c *Cache) GetNeighborList() (neighbors []*Node) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cache
}

// UpdateDIOParent recomputes the preferred parent for each DODAG in dodags,
// then recomputes the globally preferred parent and this node's own rank
// within it. It returns whether the node's effective rank or preferred
// parent changed, signaling the caller should re-arm the DIO Trickle timer.
func (c *Cache) UpdateDIOParent(dodags []DODAGHandle) (changed bool) {
	oldPreferred := c.GetPreferred()

	var allParents []*Node

	for _, d := range dodags {
		c.mu.RLock()
		var neighbors []*Node
		for _, n := range c.cache {
			if n.DODAG.Key() == d.Key() {
				neighbors = append(neighbors, n)
			}
		}
		c.mu.RUnlock()

		parents := ComputeDIOParents(neighbors)
		allParents = append(allParents, parents...)
		sortParents(parents)

		if len(parents) == 0 || !RankIncreaseIsLegit(parents[0]) {
			d.SetPreferredParent(nil)

			continue
		}

		d.SetPreferredParent(parents[0])
	}

	c.mu.Lock()
	c.parents = allParents
	c.mu.Unlock()

	var globalParents []*Node
	for _, d := range dodags {
		if p := d.PreferredParent(); p != nil {
			globalParents = append(globalParents, p)
		}
	}
	sortParents(globalParents)

	for !c.setPreferred(globalParents) {
		if len(globalParents) > 0 {
			globalParents = globalParents[1:]
		}
	}

	pref := c.GetPreferred()
	if pref == nil {
		c.logger.Debug("DIO parent set is empty")

		return oldPreferred != nil
	}

	oldRank := pref.DODAG.Rank()
	pref.DODAG.SetRank(pref.DODAG.ComputeRankIncrease(pref.Rank))

	if oldRank != pref.DODAG.Rank() {
		pref.DODAG.HearDIOInconsistent()

		return true
	}

	return oldPreferred != pref
}

// RemoveNodesByDODAG drops every neighbor attached to dodag, provided dodag
// is not currently active.
func (c *Cache) RemoveNodesByDODAG(dodag DODAGHandle) {
	if dodag.Active() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.cache[:0]
	for _, n := range c.cache {
		if n.DODAG.Key() == dodag.Key() {
			c.logger.Debug("removing node from cache", "address", n.Address, "dodag", dodag.Key().DODAGID)
			c.parents = removeNode(c.parents, n)

			continue
		}

		kept = append(kept, n)
	}

	c.cache = kept
}

func removeNode(nodes []*Node, target *Node) (rest []*Node) {
	for _, n := range nodes {
		if n != target {
			rest = append(rest, n)
		}
	}

	return rest
}

// RemoveNodeByAddress removes a single neighbor, identified by dodag and
// address, from the cache. It reports whether route state changed
// (downward routes through it, the default route if it was preferred).
func (c *Cache) RemoveNodeByAddress(dodag DODAGHandle, address netip.Addr) (updated bool) {
	c.mu.Lock()

	var target *Node
	kept := c.cache[:0]
	for _, n := range c.cache {
		if n.DODAG.Key() == dodag.Key() && n.Address == address {
			target = n
			c.parents = removeNode(c.parents, n)

			continue
		}

		kept = append(kept, n)
	}
	c.cache = kept

	wasPreferred := target != nil && target == c.preferred
	if wasPreferred {
		c.preferred = nil
	}

	c.mu.Unlock()

	if target == nil {
		return false
	}

	if target.DODAG.Active() {
		removed := c.routes.RemoveNexthop(address)
		updated = updated || len(removed) > 0

		if wasPreferred {
			updated = c.routes.Remove(defaultRouteVia(target)) || updated
		}
	}

	return updated
}

// HasNeighbors reports whether the cache holds any neighbor attached to
// dodag.
func (c *Cache) HasNeighbors(dodag DODAGHandle) (ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, n := range c.cache {
		if n.DODAG.Key() == dodag.Key() {
			return true
		}
	}

	return false
}
