package engine_test

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/engine"
	"rpld/internal/rpl/routecache"
	"rpld/internal/rpl/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  [][]byte
	bcast [][]byte
}

func (f *fakeSender) Send(_ string, _ netip.Addr, msg []byte) error {
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

func (f *fakeSender) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.bcast)
}

type fakeReceiver struct {
	frames chan frameIn
}

type frameIn struct {
	msg      []byte
	src, dst netip.Addr
}

func newFakeReceiver() *fakeReceiver { return &fakeReceiver{frames: make(chan frameIn, 16)} }

func (f *fakeReceiver) Receive(ctx context.Context) (msg []byte, src, dst netip.Addr, err error) {
	select {
	case fr := <-f.frames:
		return fr.msg, fr.src, fr.dst, nil
	case <-ctx.Done():
		return nil, netip.Addr{}, netip.Addr{}, ctx.Err()
	}
}

func (f *fakeReceiver) push(msg []byte, src, dst netip.Addr) {
	f.frames <- frameIn{msg: msg, src: src, dst: dst}
}

type fakeAddrs struct {
	mu        sync.Mutex
	assigned  map[netip.Addr]bool
	addresses []netip.Addr
}

func newFakeAddrs(self ...netip.Addr) *fakeAddrs {
	a := &fakeAddrs{assigned: make(map[netip.Addr]bool)}
	for _, addr := range self {
		a.assigned[addr] = true
		a.addresses = append(a.addresses, addr)
	}

	return a
}

func (a *fakeAddrs) Assign(_ string, addr netip.Addr, _ uint8, _, _ uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.assigned[addr] = true
	a.addresses = append(a.addresses, addr)

	return nil
}

func (a *fakeAddrs) IsAssigned(addr netip.Addr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.assigned[addr]
}

func (a *fakeAddrs) Addresses() []netip.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]netip.Addr(nil), a.addresses...)
}

type fakeFIB struct{}

func (fakeFIB) AddRoute(routecache.Route) error    { return nil }
func (fakeFIB) RemoveRoute(routecache.Route) error { return nil }

func testConfig(isRoot bool, dodagIDs ...netip.Addr) engine.Config {
	return engine.Config{
		Logger:      slog.New(slog.DiscardHandler),
		Interfaces:  []string{"eth0"},
		DODAGIDs:    dodagIDs,
		IsRoot:      isRoot,
		InstanceID:  1,
		DODAGConfig: dodag.DefaultConfig(),
	}
}

func TestConfig_validate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(true)
	assert.Error(t, cfg.Validate())

	cfg = engine.Config{Logger: slog.New(slog.DiscardHandler), IsRoot: false}
	assert.Error(t, cfg.Validate())

	cfg = testConfig(true, netip.MustParseAddr("2001:db8::1"))
	assert.NoError(t, cfg.Validate())
}

func TestEngine_rootBroadcastsNoDIS(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	recv := newFakeReceiver()
	addrs := newFakeAddrs()

	e := engine.New(
		testConfig(true, netip.MustParseAddr("2001:db8::1")),
		sender,
		map[string]engine.LinkReceiver{"eth0": recv},
		addrs,
		fakeFIB{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer func() { _ = e.Shutdown(context.Background()) }()

	time.Sleep(20 * time.Millisecond)

	for _, msg := range broadcastsSent(sender) {
		require.NotEqual(t, uint8(wire.CodeDIS), msg[1], "root already belongs to a DODAG, should not broadcast DIS")
	}
}

func broadcastsSent(s *fakeSender) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]byte(nil), s.bcast...)
}

func TestEngine_respondsToDISWithDIO(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	recv := newFakeReceiver()
	addrs := newFakeAddrs()
	dodagID := netip.MustParseAddr("2001:db8::1")

	e := engine.New(testConfig(true, dodagID), sender, map[string]engine.LinkReceiver{"eth0": recv}, addrs, fakeFIB{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer func() { _ = e.Shutdown(context.Background()) }()

	dis := wire.DIS{}.Encode(nil)
	recv.push(dis, netip.MustParseAddr("fe80::2"), netip.MustParseAddr("fe80::1"))

	require.Eventually(t, func() bool { return len(sentTo(sender)) >= 1 }, time.Second, time.Millisecond)
}

func sentTo(s *fakeSender) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sent
}

func TestEngine_cliSubmitRoundTrip(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	recv := newFakeReceiver()
	addrs := newFakeAddrs()

	e := engine.New(
		testConfig(true, netip.MustParseAddr("2001:db8::1")),
		sender,
		map[string]engine.LinkReceiver{"eth0": recv},
		addrs,
		fakeFIB{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer func() { _ = e.Shutdown(context.Background()) }()

	reply, err := e.Submit(ctx, "show-current-dodag")
	require.NoError(t, err)
	assert.Contains(t, reply, "2001:db8::1")

	reply, err = e.Submit(ctx, "bogus-command")
	require.NoError(t, err)
	assert.Contains(t, reply, "unknown command")
}

func TestEngine_shutdownStopsDispatchLoop(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	recv := newFakeReceiver()
	addrs := newFakeAddrs()

	e := engine.New(
		testConfig(true, netip.MustParseAddr("2001:db8::1")),
		sender,
		map[string]engine.LinkReceiver{"eth0": recv},
		addrs,
		fakeFIB{},
	)

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	require.NoError(t, e.Shutdown(shutdownCtx))

	submitCtx, submitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer submitCancel()

	_, err := e.Submit(submitCtx, "list-dodag-cache")
	assert.Error(t, err, "the engine goroutine has exited after shutdown, Submit should time out")
}
