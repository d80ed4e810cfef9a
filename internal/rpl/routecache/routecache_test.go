package routecache_test

import (
	"net/netip"
	"testing"

	"rpld/internal/rpl/routecache"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFIB struct {
	added, removed []routecache.Route
	failAdd        bool
}

func (f *fakeFIB) AddRoute(r routecache.Route) error {
	if f.failAdd {
		return errors.Error("boom")
	}

	f.added = append(f.added, r)

	return nil
}

func (f *fakeFIB) RemoveRoute(r routecache.Route) error {
	f.removed = append(f.removed, r)

	return nil
}

func testRoute() routecache.Route {
	return routecache.Route{
		Target:       netip.MustParsePrefix("2001:db8::42/128"),
		NextHop:      netip.MustParseAddr("fe80::1"),
		NextHopIface: "eth0",
		OneHop:       true,
	}
}

func TestCache_addIdempotent(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	c := routecache.New(fib, nil)
	r := testRoute()

	changed, err := c.Add(r)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.Add(r)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Len(t, fib.added, 1)
}

func TestCache_removeIdempotent(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	c := routecache.New(fib, nil)
	r := testRoute()

	assert.False(t, c.Remove(r))

	_, err := c.Add(r)
	require.NoError(t, err)

	assert.True(t, c.Remove(r))
	assert.False(t, c.Remove(r))
}

func TestCache_selfAssignedRejected(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	self := func(addr netip.Addr) bool { return true }
	c := routecache.New(fib, self)

	_, err := c.Add(testRoute())
	assert.Error(t, err)
	assert.Empty(t, fib.added)
}

func TestCache_addFailureNotRecorded(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{failAdd: true}
	c := routecache.New(fib, nil)

	_, err := c.Add(testRoute())
	assert.Error(t, err)
	assert.Empty(t, c.Routes())
}

func TestCache_lookupNexthop(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	c := routecache.New(fib, nil)
	r := testRoute()

	_, err := c.Add(r)
	require.NoError(t, err)

	got, ok := c.LookupNexthop(netip.MustParseAddr("2001:db8::42"))
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestCache_removeNexthop(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	c := routecache.New(fib, nil)
	r := testRoute()

	_, err := c.Add(r)
	require.NoError(t, err)

	removed := c.RemoveNexthop(r.NextHop)
	assert.Len(t, removed, 1)
	assert.Empty(t, c.Routes())
}

func TestCache_emptyCache(t *testing.T) {
	t.Parallel()

	fib := &fakeFIB{}
	c := routecache.New(fib, nil)

	_, err := c.Add(testRoute())
	require.NoError(t, err)

	c.EmptyCache()
	assert.Empty(t, c.Routes())
	assert.Len(t, fib.removed, 1)
}
