package neighbor_test

import (
	"log/slog"
	"net/netip"
	"testing"

	"rpld/internal/rpl/lollipop"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/of0"
	"rpld/internal/rpl/routecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDODAG struct {
	key              neighbor.DODAGKey
	rank             uint16
	minHopInc        uint16
	maxRankInc       uint16
	lowestAdvertised uint16
	active           bool
	grounded         bool
	preferred        *neighbor.Node
	downward         []routecache.Route
	heardInconsist   int
}

func newFakeDODAG(dodagID string, version uint8) *fakeDODAG {
	v, _ := lollipop.New(int(version))

	return &fakeDODAG{
		key: neighbor.DODAGKey{
			InstanceID: 1,
			DODAGID:    netip.MustParseAddr(dodagID),
			Version:    v,
		},
		rank:      of0.InfiniteRank,
		minHopInc: 256,
		grounded:  true,
	}
}

func (d *fakeDODAG) Key() neighbor.DODAGKey { return d.key }
func (d *fakeDODAG) InstanceID() uint8      { return d.key.InstanceID }
func (d *fakeDODAG) OCP() uint16            { return 0 }
func (d *fakeDODAG) Grounded() bool         { return d.grounded }
func (d *fakeDODAG) Prf() uint8             { return 0 }
func (d *fakeDODAG) Rank() uint16           { return d.rank }
func (d *fakeDODAG) SetRank(r uint16)       { d.rank = r }
func (d *fakeDODAG) DAGRank(rank uint16) uint16 {
	if d.minHopInc == 0 {
		return 0
	}

	return rank / d.minHopInc
}
func (d *fakeDODAG) ComputeRankIncrease(parentRank uint16) uint16 {
	return of0.ComputeRankIncrease(parentRank, d.minHopInc)
}
func (d *fakeDODAG) MaxRankIncrease() uint16          { return d.maxRankInc }
func (d *fakeDODAG) LowestRankAdvertised() uint16     { return d.lowestAdvertised }
func (d *fakeDODAG) Active() bool                     { return d.active }
func (d *fakeDODAG) SetActive(active bool)            { d.active = active }
func (d *fakeDODAG) PreferredParent() *neighbor.Node  { return d.preferred }
func (d *fakeDODAG) SetPreferredParent(n *neighbor.Node) { d.preferred = n }
func (d *fakeDODAG) DownwardRoutesGet() []routecache.Route { return d.downward }
func (d *fakeDODAG) HearDIOInconsistent()             { d.heardInconsist++ }

type fakeRoutes struct {
	added, removed []routecache.Route
}

func (f *fakeRoutes) Add(r routecache.Route) (bool, error) {
	f.added = append(f.added, r)

	return true, nil
}

func (f *fakeRoutes) Remove(r routecache.Route) bool {
	f.removed = append(f.removed, r)

	return true
}

func (f *fakeRoutes) AddRoutes(rs []routecache.Route) []routecache.Route {
	f.added = append(f.added, rs...)

	return rs
}

func (f *fakeRoutes) RemoveRoutes(rs []routecache.Route) []routecache.Route {
	f.removed = append(f.removed, rs...)

	return rs
}

func (f *fakeRoutes) RemoveNexthop(nextHop netip.Addr) []routecache.Route {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCache_registerNodeUpdatesInPlace(t *testing.T) {
	t.Parallel()

	c := neighbor.New(testLogger(), &fakeRoutes{})
	d := newFakeDODAG("2001:db8::1", 1)
	addr := netip.MustParseAddr("fe80::1")

	c.RegisterNode("eth0", addr, d, 512, 10)
	c.RegisterNode("eth0", addr, d, 256, 11)

	assert.Len(t, c.GetNeighborList(), 1)
	n := c.GetNeighborList()[0]
	assert.Equal(t, uint16(256), n.Rank)
}

func TestComputeDIOParents_filtersHigherRank(t *testing.T) {
	t.Parallel()

	d := newFakeDODAG("2001:db8::1", 1)
	d.rank = 1024

	low := &neighbor.Node{DODAG: d, Rank: 256}
	high := &neighbor.Node{DODAG: d, Rank: 2048}

	parents := neighbor.ComputeDIOParents([]*neighbor.Node{low, high})
	require.Len(t, parents, 1)
	assert.Same(t, low, parents[0])
}

func TestRankIncreaseIsLegit(t *testing.T) {
	t.Parallel()

	d := newFakeDODAG("2001:db8::1", 1)
	d.maxRankInc = 0
	n := &neighbor.Node{DODAG: d, Rank: 0xfff0}
	assert.True(t, neighbor.RankIncreaseIsLegit(n))

	d2 := newFakeDODAG("2001:db8::1", 1)
	d2.maxRankInc = 100
	d2.lowestAdvertised = 0
	n2 := &neighbor.Node{DODAG: d2, Rank: 10000}
	assert.False(t, neighbor.RankIncreaseIsLegit(n2))
}

func TestCache_updateDIOParentSelectsPreferred(t *testing.T) {
	t.Parallel()

	routes := &fakeRoutes{}
	c := neighbor.New(testLogger(), routes)
	d := newFakeDODAG("2001:db8::1", 1)
	d.rank = 1024

	addr := netip.MustParseAddr("fe80::1")
	c.RegisterNode("eth0", addr, d, 256, 1)

	changed := c.UpdateDIOParent([]neighbor.DODAGHandle{d})
	assert.True(t, changed)

	pref := c.GetPreferred()
	require.NotNil(t, pref)
	assert.Equal(t, addr, pref.Address)
	assert.NotEmpty(t, routes.added)
}

func TestCache_hasNeighbors(t *testing.T) {
	t.Parallel()

	c := neighbor.New(testLogger(), &fakeRoutes{})
	d := newFakeDODAG("2001:db8::1", 1)
	other := newFakeDODAG("2001:db8::2", 1)

	assert.False(t, c.HasNeighbors(d))

	c.RegisterNode("eth0", netip.MustParseAddr("fe80::1"), d, 256, 1)
	assert.True(t, c.HasNeighbors(d))
	assert.False(t, c.HasNeighbors(other))
}

func TestCache_removeNodeByAddress(t *testing.T) {
	t.Parallel()

	routes := &fakeRoutes{}
	c := neighbor.New(testLogger(), routes)
	d := newFakeDODAG("2001:db8::1", 1)
	d.active = true

	addr := netip.MustParseAddr("fe80::1")
	c.RegisterNode("eth0", addr, d, 256, 1)

	updated := c.RemoveNodeByAddress(d, addr)
	assert.True(t, updated)
	assert.Empty(t, c.GetNeighborList())
}
