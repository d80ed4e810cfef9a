// Package engine owns the RPL control-plane processing loop (spec Section
// 4.10): message dispatch by RPL code, the DIS broadcast loop, and CLI
// command dispatch. Inbound frames and CLI commands are handled one at a
// time on the dispatch goroutine. The per-DODAG timers of package dodag
// (DIO Trickle, DAO delay, DAO-ACK retransmission) fire on their own
// goroutines and send messages and update the neighbor and route caches
// directly, not through this loop; those caches guard their state with
// their own locks.
package engine

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/dodagcache"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/routecache"
	"rpld/internal/rpl/rpladdr"
	"rpld/internal/rpl/wire"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// defaultIntervalBetweenDIS is how often the DIS loop broadcasts a
// solicitation while the node belongs to no DODAG (spec Section 6).
const defaultIntervalBetweenDIS = 300 * time.Second

// Errors returned by [Config.Validate]. Either one is a configuration error
// that terminates the daemon at startup (spec Section 7).
const (
	errRootWithoutDODAG errors.Error = "rpl: a DODAG root must be configured with at least one DODAG ID (-d)"
	errNoInterfaces     errors.Error = "rpl: at least one interface must be configured (-i)"
)

// Config is the engine's startup configuration, built from the -d, -i, -R,
// -p, and -v flags (spec Section 6).
type Config struct {
	// Logger is the root logger; every constructed component derives its own
	// logger from it. It must not be nil.
	Logger *slog.Logger

	// Interfaces lists the network interfaces this node participates in RPL
	// on (-i, repeatable). It must not be empty.
	Interfaces []string

	// DODAGIDs seeds the DODAG(s) this node is the root of (-d, repeatable).
	// Required when IsRoot is true.
	DODAGIDs []netip.Addr

	// IsRoot reports whether this node is a DODAG root (-R).
	IsRoot bool

	// Prefixes are advertised via the Prefix Information option in this
	// node's DIOs when it is a root (-p, repeatable).
	Prefixes []netip.Prefix

	// InstanceID is the RPL Instance this node's root DODAG(s) belong to.
	// Non-root nodes instead attach to the first InstanceID they observe
	// (spec Section 4.10).
	InstanceID uint8

	DODAGConfig dodag.Config
}

var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("conf.Logger", c.Logger),
	}

	if len(c.Interfaces) == 0 {
		errs = append(errs, errNoInterfaces)
	}

	if c.IsRoot && len(c.DODAGIDs) == 0 {
		errs = append(errs, errRootWithoutDODAG)
	}

	return errors.Join(errs...)
}

// LinkSender transmits encoded RPL messages. Shared with [dodag.LinkSender].
type LinkSender = dodag.LinkSender

// LinkReceiver receives one parsed frame from a single interface. A
// production implementation would back this with a raw ICMPv6 socket (spec
// Section 11's out-of-scope netlink/raw-socket stack); this package depends
// only on the interface.
type LinkReceiver interface {
	// Receive blocks until a frame arrives, ctx is cancelled, or the
	// interface is closed (in which case it returns a non-nil error).
	Receive(ctx context.Context) (msg []byte, src, dst netip.Addr, err error)
}

// AddressAdapter manages the addresses assigned to this node. It is an
// external collaborator out of scope for this module (spec Section 1).
type AddressAdapter interface {
	// Assign installs addr on iface with the given prefix length and
	// lifetimes, derived from a Prefix Information option (spec Section
	// 4.10).
	Assign(iface string, addr netip.Addr, prefixLen uint8, validLifetime, preferredLifetime uint32) error

	// IsAssigned reports whether addr is currently assigned to this node, so
	// the engine can drop self-originated messages (spec Section 4.10) and
	// [routecache.Cache] can refuse to install a route to itself.
	IsAssigned(addr netip.Addr) bool

	// Addresses returns every address currently assigned to this node.
	Addresses() []netip.Addr
}

// CLICommand is a single request/reply exchange over the CLI channel (spec
// Section 6).
type CLICommand struct {
	Text  string
	Reply chan<- string
}

// Frame is a parsed inbound message, as pushed by a per-interface receiver
// goroutine (spec Section 4.10).
type Frame struct {
	Msg   []byte
	Src   netip.Addr
	Dst   netip.Addr
	Iface string
}

// Engine owns the processing loop. Frames and CLI commands are processed
// serially on the goroutine running [Engine.run]; receiver goroutines only
// send on inbound. [Engine.Start], [Engine.Shutdown], and the dodag
// timers also modify the caches from their own goroutines.
type Engine struct {
	logger *slog.Logger
	cfg    Config

	sender    LinkSender
	receivers map[string]LinkReceiver
	addrs     AddressAdapter
	fib       routecache.FIBAdapter

	routes  *routecache.Cache
	neighs  *neighbor.Cache
	dodags  *dodagcache.Cache
	metrics *Metrics

	// instanceID and instanceSet are touched only from the engine's own
	// goroutine (spec Section 5), so they need no lock.
	instanceID  uint8
	instanceSet bool

	inbound chan Frame
	cli     chan CLICommand

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs an Engine. cfg must already be validated.
func New(
	cfg Config,
	sender LinkSender,
	receivers map[string]LinkReceiver,
	addrs AddressAdapter,
	fib routecache.FIBAdapter,
) (e *Engine) {
	routes := routecache.New(fib, addrs.IsAssigned)
	neighs := neighbor.New(cfg.Logger, routes)
	dodags := dodagcache.New(cfg.Logger)

	e = &Engine{
		logger:     cfg.Logger,
		cfg:        cfg,
		sender:     sender,
		receivers:  receivers,
		addrs:      addrs,
		fib:        fib,
		routes:     routes,
		neighs:     neighs,
		dodags:     dodags,
		metrics:    NewMetrics(),
		instanceID: cfg.InstanceID,
		inbound:    make(chan Frame, 64),
		cli:        make(chan CLICommand),
	}

	if cfg.IsRoot {
		e.instanceSet = true
	}

	return e
}

// Metrics returns the engine's Prometheus instruments, for the caller to
// register with its own registry (spec Section 10).
func (e *Engine) Metrics() (m *Metrics) { return e.metrics }

// Start spawns the per-interface receiver goroutines, the DIS broadcast
// loop, and the engine's own dispatch goroutine. If this node is a root, its
// configured DODAGs are created immediately, each with [dodag.RootRank].
func (e *Engine) Start(ctx context.Context) (err error) {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.cfg.IsRoot {
		for _, id := range e.cfg.DODAGIDs {
			e.newRootDODAG(id)
		}
	}

	for iface, recv := range e.receivers {
		e.wg.Add(1)

		go e.listen(ctx, iface, recv)
	}

	e.wg.Add(1)
	go e.runDISLoop(ctx)

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.Info("rpl engine started", "interfaces", e.cfg.Interfaces, "is_root", e.cfg.IsRoot)

	return nil
}

func (e *Engine) newRootDODAG(id netip.Addr) {
	v := dodag.New(dodag.NewParams{
		Logger:     e.logger,
		Sender:     e.sender,
		Addrs:      e.addrs,
		Routes:     e.routes,
		Neighbors:  e.neighs,
		Interfaces: e.cfg.Interfaces,
		InstanceID: e.instanceID,
		DODAGID:    id,
		Version:    1,
		Grounded:   true,
		MOP:        2,
		IsRoot:     true,
		Config:     e.cfg.DODAGConfig,
	})

	for _, prefix := range e.cfg.Prefixes {
		v.AddAdvertisedPrefix(prefix)
	}

	v.SetActive(true)
	e.dodags.Add(v)
	e.metrics.DODAGCacheSize.Set(float64(len(e.dodags.All())))
}

// Shutdown poisons every DODAG (sending final No-Path DAOs and an
// infinite-rank DIO), drains the route cache, cancels every timer, and waits
// for the receiver and dispatch goroutines to exit (spec Section 5).
func (e *Engine) Shutdown(ctx context.Context) (err error) {
	e.logger.Info("rpl engine shutting down")

	e.dodags.PoisonAll()
	e.dodags.CleanupAll()
	e.routes.EmptyCache()

	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "rpl engine shutdown: %w")
	}
}

// listen runs a single interface's receive loop, pushing every frame onto
// the inbound channel. It is a pure producer: it never touches engine state
// directly (spec Section 5).
func (e *Engine) listen(ctx context.Context, iface string, recv LinkReceiver) {
	defer e.wg.Done()

	e.logger.Info("starting rpl listener", "iface", iface)

	for {
		msg, src, dst, err := recv.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			e.logger.Debug("receive error", "iface", iface, "error", err)

			continue
		}

		select {
		case e.inbound <- Frame{Msg: msg, Src: src, Dst: dst, Iface: iface}:
		case <-ctx.Done():
			return
		}
	}
}

// runDISLoop mirrors broadcast_dis: every [defaultIntervalBetweenDIS], if
// the node belongs to no DODAG, it broadcasts a DIS on every interface.
func (e *Engine) runDISLoop(ctx context.Context) {
	defer e.wg.Done()

	e.broadcastDIS()

	t := time.NewTicker(defaultIntervalBetweenDIS)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			e.broadcastDIS()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) broadcastDIS() {
	if !e.dodags.IsEmpty() {
		e.logger.Debug("no DIS broadcast required, already attached to a DODAG")

		return
	}

	e.logger.Debug("broadcasting DIS")

	dis := wire.DIS{}
	if err := e.sender.Broadcast(dis.Encode(nil)); err != nil {
		e.logger.Warn("failed to broadcast DIS", "error", err)

		return
	}

	e.metrics.DISSent.Inc()
}

// run is the single engine goroutine: it serially drains the inbound and
// CLI channels, dispatching each frame by RPL code and each CLI command by
// name (spec Section 5).
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case f := <-e.inbound:
			e.handleFrame(f)
		case cmd := <-e.cli:
			reply := e.handleCLI(cmd.Text)
			cmd.Reply <- reply
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame drops self-originated messages and messages whose source is
// not link-local, and dispatches the rest by RPL code (spec Section 4.10).
func (e *Engine) handleFrame(f Frame) {
	if e.addrs.IsAssigned(f.Src) {
		return
	}

	code, rest, err := wire.ParseHeader(f.Msg)
	if err != nil {
		e.logger.Debug("unable to parse ICMPv6 header", "error", err)

		return
	}

	if !rpladdr.IsLinkLocal(f.Src) {
		e.logger.Debug("message source is not link-local, dropping", "source", f.Src)

		return
	}

	switch code {
	case wire.CodeDIS:
		e.metrics.DISReceived.Inc()
		e.handleDIS(f, rest)
	case wire.CodeDIO:
		e.metrics.DIOReceived.Inc()
		e.handleDIO(f, rest)
	case wire.CodeDAO:
		e.metrics.DAOReceived.Inc()
		e.handleDAO(f, rest)
	case wire.CodeDAOACK:
		e.metrics.DAOACKReceived.Inc()
		e.handleDAOACK(f, rest)
	default:
		e.logger.Debug("unhandled RPL code", "code", code)
	}
}

// Submit enqueues a CLI command and blocks until the engine replies,
// matching the request/reply shape of the Python original's CLI socket
// (spec Section 6).
func (e *Engine) Submit(ctx context.Context, text string) (reply string, err error) {
	replyCh := make(chan string, 1)

	select {
	case e.cli <- CLICommand{Text: text, Reply: replyCh}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case reply = <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
