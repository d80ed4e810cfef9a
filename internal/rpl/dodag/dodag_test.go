package dodag_test

import (
	"log/slog"
	"net/netip"
	"sync"
	"testing"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/routecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  [][]byte
	bcast [][]byte
}

func (f *fakeSender) Send(iface string, dst netip.Addr, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeSender) Broadcast(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bcast = append(f.bcast, msg)

	return nil
}

type fakeAddrs struct{ addrs []netip.Addr }

func (f fakeAddrs) Addresses() []netip.Addr { return f.addrs }

type fakeNeighbors struct {
	removedByAddr []netip.Addr
	removedDODAGs int
}

func (f *fakeNeighbors) RemoveNodeByAddress(_ neighbor.DODAGHandle, addr netip.Addr) bool {
	f.removedByAddr = append(f.removedByAddr, addr)

	return true
}

func (f *fakeNeighbors) RemoveNodesByDODAG(_ neighbor.DODAGHandle) {
	f.removedDODAGs++
}

func (f *fakeNeighbors) UpdateDIOParent(_ []neighbor.DODAGHandle) bool { return false }

type fakeFIB struct{}

func (fakeFIB) AddRoute(routecache.Route) error    { return nil }
func (fakeFIB) RemoveRoute(routecache.Route) error { return nil }

func newTestVersion(t *testing.T, isRoot bool) (*dodag.Version, *fakeSender) {
	t.Helper()

	sender := &fakeSender{}
	routes := routecache.New(fakeFIB{}, nil)

	v := dodag.New(dodag.NewParams{
		Logger:     slog.New(slog.DiscardHandler),
		Sender:     sender,
		Addrs:      fakeAddrs{},
		Routes:     routes,
		Neighbors:  &fakeNeighbors{},
		Interfaces: []string{"eth0"},
		InstanceID: 1,
		DODAGID:    netip.MustParseAddr("2001:db8::1"),
		Version:    1,
		Grounded:   true,
		IsRoot:     isRoot,
		Config:     dodag.DefaultConfig(),
	})
	t.Cleanup(v.Cleanup)

	return v, sender
}

func TestNew_rootHasRootRank(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, true)
	assert.Equal(t, dodag.RootRank, v.Rank())
}

func TestNew_nonRootHasInfiniteRank(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, false)
	assert.Equal(t, uint16(0xffff), v.Rank())
}

func TestVersion_sendDIOBroadcasts(t *testing.T) {
	t.Parallel()

	v, sender := newTestVersion(t, true)

	err := v.SendDIO("", netip.Addr{}, false)
	require.NoError(t, err)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.bcast, 1)
	assert.Equal(t, uint8(155), sender.bcast[0][0])
	assert.Equal(t, uint8(0x01), sender.bcast[0][1])
}

func TestVersion_downwardRouteAddAndDel(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, true)

	r := routecache.Route{
		Target:       netip.MustParsePrefix("2001:db8::42/128"),
		NextHop:      netip.MustParseAddr("fe80::1"),
		NextHopIface: "eth0",
	}

	v.DownwardRouteAdd(r, false)
	assert.Len(t, v.DownwardRoutesGet(), 1)

	v.DownwardRouteDel(r)
	assert.Empty(t, v.DownwardRoutesGet())
}

func TestVersion_downwardRouteAddSelfAssignedSkipped(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, true)
	r := routecache.Route{Target: netip.MustParsePrefix("2001:db8::42/128")}

	v.DownwardRouteAdd(r, true)
	assert.Empty(t, v.DownwardRoutesGet())
}

func TestVersion_getFilteredDownwardRoutesPrefersOneHop(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, true)

	target := netip.MustParsePrefix("2001:db8::42/128")
	multiHop := routecache.Route{Target: target, NextHop: netip.MustParseAddr("fe80::1"), NextHopIface: "eth0"}
	oneHop := routecache.Route{Target: target, NextHop: netip.MustParseAddr("fe80::2"), NextHopIface: "eth0", OneHop: true}

	v.DownwardRouteAdd(multiHop, false)
	v.DownwardRouteAdd(oneHop, false)

	removed, kept := v.GetFilteredDownwardRoutes(func(string, netip.Addr) (uint16, bool) { return 0, true })
	require.Len(t, kept, 1)
	assert.Equal(t, oneHop, kept[0])
	require.Len(t, removed, 1)
	assert.Equal(t, multiHop, removed[0])
}

func TestVersion_poisonSetsInfiniteRank(t *testing.T) {
	t.Parallel()

	v, sender := newTestVersion(t, true)

	v.Poison(false)
	assert.Equal(t, uint16(0xffff), v.Rank())

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.NotEmpty(t, sender.bcast)
}

func TestVersion_applyConfigUpdatesMinHopRankIncrease(t *testing.T) {
	t.Parallel()

	v, _ := newTestVersion(t, true)

	cfg := v.Config()
	cfg.MinHopRankIncrease = 512
	v.ApplyConfig(cfg)

	assert.Equal(t, uint16(512), v.Config().MinHopRankIncrease)
	assert.Equal(t, uint16(1), v.DAGRank(512))
}
