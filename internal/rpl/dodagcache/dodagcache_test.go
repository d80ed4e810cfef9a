package dodagcache_test

import (
	"log/slog"
	"net/netip"
	"sync"
	"testing"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/dodagcache"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/routecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct{ mu sync.Mutex }

func (f *fakeSender) Send(string, netip.Addr, []byte) error { return nil }
func (f *fakeSender) Broadcast([]byte) error                { return nil }

type fakeAddrs struct{}

func (fakeAddrs) Addresses() []netip.Addr { return nil }

type fakeNeighbors struct{}

func (fakeNeighbors) RemoveNodeByAddress(neighbor.DODAGHandle, netip.Addr) bool { return false }
func (fakeNeighbors) RemoveNodesByDODAG(neighbor.DODAGHandle)                   {}
func (fakeNeighbors) UpdateDIOParent([]neighbor.DODAGHandle) bool              { return false }

type fakeFIB struct{}

func (fakeFIB) AddRoute(routecache.Route) error    { return nil }
func (fakeFIB) RemoveRoute(routecache.Route) error { return nil }

func newVersion(t *testing.T, dodagID string, version uint8, isRoot bool) *dodag.Version {
	t.Helper()

	v := dodag.New(dodag.NewParams{
		Logger:     slog.New(slog.DiscardHandler),
		Sender:     &fakeSender{},
		Addrs:      fakeAddrs{},
		Routes:     routecache.New(fakeFIB{}, nil),
		Neighbors:  fakeNeighbors{},
		Interfaces: []string{"eth0"},
		InstanceID: 1,
		DODAGID:    netip.MustParseAddr(dodagID),
		Version:    version,
		Grounded:   true,
		IsRoot:     isRoot,
		Config:     dodag.DefaultConfig(),
	})
	t.Cleanup(v.Cleanup)

	return v
}

func TestCache_isEmptyAndAdd(t *testing.T) {
	t.Parallel()

	c := dodagcache.New(slog.New(slog.DiscardHandler))
	assert.True(t, c.IsEmpty())

	v := newVersion(t, "2001:db8::1", 1, true)
	c.Add(v)
	assert.False(t, c.IsEmpty())
}

func TestCache_getDODAGFilters(t *testing.T) {
	t.Parallel()

	c := dodagcache.New(slog.New(slog.DiscardHandler))
	v1 := newVersion(t, "2001:db8::1", 1, true)
	v2 := newVersion(t, "2001:db8::2", 1, false)
	c.Add(v1)
	c.Add(v2)

	id := netip.MustParseAddr("2001:db8::1")
	matches := c.GetDODAG(dodagcache.Filter{DODAGID: &id})
	require.Len(t, matches, 1)
	assert.Same(t, v1, matches[0])

	isRoot := true
	matches = c.GetDODAG(dodagcache.Filter{IsRoot: &isRoot})
	require.Len(t, matches, 1)
	assert.Same(t, v1, matches[0])
}

func TestCache_getActiveDODAG(t *testing.T) {
	t.Parallel()

	c := dodagcache.New(slog.New(slog.DiscardHandler))
	assert.Nil(t, c.GetActiveDODAG())

	v := newVersion(t, "2001:db8::1", 1, true)
	v.SetActive(true)
	c.Add(v)

	assert.Same(t, v, c.GetActiveDODAG())
}

func TestCache_purgeOldVersions(t *testing.T) {
	t.Parallel()

	c := dodagcache.New(slog.New(slog.DiscardHandler))
	old := newVersion(t, "2001:db8::1", 1, true)
	newer := newVersion(t, "2001:db8::1", 2, true)
	c.Add(old)
	c.Add(newer)

	c.PurgeOldVersions()

	matches := c.GetDODAG(dodagcache.Filter{})
	require.Len(t, matches, 1)
	assert.Same(t, newer, matches[0])
}
