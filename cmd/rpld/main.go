// Command rpld runs the RPL control-plane engine as a standalone daemon: it
// parses the startup flags, wires a real [engine.Engine] together with
// placeholder link/FIB/address adapters, serves Prometheus metrics, and
// relays stdin lines to the engine's CLI.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/engine"
	"rpld/internal/rpl/routecache"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// addrFlags, prefixFlags, and stringFlags collect the repeatable -d, -p,
// and -i flags.
type addrFlags []netip.Addr

func (a *addrFlags) String() (s string) { return fmt.Sprint([]netip.Addr(*a)) }

func (a *addrFlags) Set(v string) (err error) {
	addr, err := netip.ParseAddr(v)
	if err != nil {
		return fmt.Errorf("-d: %w", err)
	}

	*a = append(*a, addr)

	return nil
}

type prefixFlags []netip.Prefix

func (p *prefixFlags) String() (s string) { return fmt.Sprint([]netip.Prefix(*p)) }

func (p *prefixFlags) Set(v string) (err error) {
	prefix, err := netip.ParsePrefix(v)
	if err != nil {
		return fmt.Errorf("-p: %w", err)
	}

	*p = append(*p, prefix)

	return nil
}

type stringFlags []string

func (s *stringFlags) String() (str string) { return fmt.Sprint([]string(*s)) }

func (s *stringFlags) Set(v string) (err error) {
	*s = append(*s, v)

	return nil
}

func main() {
	var (
		dodagIDs    addrFlags
		ifaces      stringFlags
		prefixes    prefixFlags
		isRoot      bool
		verbose     bool
		instanceID  uint
		metricsBind string
	)

	flag.Var(&dodagIDs, "d", "DODAG ID this node is the root of (repeatable; required with -R)")
	flag.Var(&ifaces, "i", "network interface to participate in RPL on (repeatable)")
	flag.Var(&prefixes, "p", "prefix to advertise via a Prefix Information option when root (repeatable)")
	flag.BoolVar(&isRoot, "R", false, "this node is a DODAG root")
	flag.BoolVar(&verbose, "v", false, "enable verbose (debug) logging")
	flag.UintVar(&instanceID, "instance", 0, "RPL Instance ID this node's root DODAG(s) belong to")
	flag.StringVar(&metricsBind, "metrics", "", "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}

	logger := slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})

	cfg := engine.Config{
		Logger:      logger,
		Interfaces:  ifaces,
		DODAGIDs:    dodagIDs,
		IsRoot:      isRoot,
		Prefixes:    prefixes,
		InstanceID:  uint8(instanceID),
		DODAGConfig: dodag.DefaultConfig(),
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slogutil.KeyError, err)
		os.Exit(64)
	}

	addrs := newStaticAddresses()
	receivers := make(map[string]engine.LinkReceiver, len(ifaces))
	for _, iface := range ifaces {
		receivers[iface] = newNullReceiver()
	}

	e := engine.New(cfg, nullSender{logger: logger}, receivers, addrs, nullFIB{logger: logger})

	if metricsBind != "" {
		registry := prometheus.NewRegistry()
		e.Metrics().Register(registry)
		serveMetrics(logger, metricsBind, registry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := e.Start(ctx); err != nil {
		logger.Error("failed to start rpl engine", slogutil.KeyError, err)
		os.Exit(1)
	}

	go runCLI(ctx, logger, e)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down rpl engine", slogutil.KeyError, err)
		os.Exit(1)
	}
}

// runCLI relays newline-terminated stdin commands to the engine, printing
// each reply, until ctx is cancelled or stdin closes.
func runCLI(ctx context.Context, logger *slog.Logger, e *engine.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}

		reply, err := e.Submit(ctx, sc.Text())
		if err != nil {
			logger.Debug("cli submit failed", slogutil.KeyError, err)

			return
		}

		fmt.Println(reply)
	}
}

func serveMetrics(logger *slog.Logger, bind string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: bind, Handler: mux}

	go func() {
		logger.Info("serving rpl metrics", "addr", bind)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", slogutil.KeyError, err)
		}
	}()
}

// nullSender, nullReceiver, and nullFIB are placeholders for the
// out-of-scope link sender/receiver and FIB adapter (spec Section 1): a
// production deployment replaces them with a raw-ICMPv6-socket transport and
// a netlink-backed FIB, built from the domain dependencies named in
// SPEC_FULL.md's DOMAIN STACK section.

type nullSender struct {
	logger *slog.Logger
}

func (s nullSender) Send(iface string, dst netip.Addr, msg []byte) (err error) {
	s.logger.Debug("link sender not wired, dropping unicast", "iface", iface, "dst", dst, "len", len(msg))

	return nil
}

func (s nullSender) Broadcast(msg []byte) (err error) {
	s.logger.Debug("link sender not wired, dropping broadcast", "len", len(msg))

	return nil
}

type nullReceiver struct {
	blockUntilCancelled chan struct{}
}

func newNullReceiver() (r *nullReceiver) { return &nullReceiver{blockUntilCancelled: make(chan struct{})} }

func (r *nullReceiver) Receive(ctx context.Context) (msg []byte, src, dst netip.Addr, err error) {
	select {
	case <-ctx.Done():
		return nil, netip.Addr{}, netip.Addr{}, ctx.Err()
	case <-r.blockUntilCancelled:
		return nil, netip.Addr{}, netip.Addr{}, nil
	}
}

type nullFIB struct {
	logger *slog.Logger
}

func (f nullFIB) AddRoute(r routecache.Route) (err error) {
	f.logger.Debug("fib adapter not wired, not installing route", "route", r)

	return nil
}

func (f nullFIB) RemoveRoute(r routecache.Route) (err error) {
	f.logger.Debug("fib adapter not wired, not removing route", "route", r)

	return nil
}

// staticAddresses reports every IPv6 address bound to any of this host's
// interfaces (not only link-local ones, and not only the configured
// interfaces) so the self-message filter and DAO target
// enumeration (spec Section 4.6) have something real to work from, without
// implementing the out-of-scope SLAAC address assignment itself.
type staticAddresses struct {
	assigned map[netip.Addr]bool
}

func newStaticAddresses() (a *staticAddresses) {
	a = &staticAddresses{assigned: make(map[netip.Addr]bool)}

	ifaces, err := net.Interfaces()
	if err != nil {
		return a
	}

	for _, iface := range ifaces {
		addrs, addrErr := iface.Addrs()
		if addrErr != nil {
			continue
		}

		for _, ifAddr := range addrs {
			ipNet, ok := ifAddr.(*net.IPNet)
			if !ok || ipNet.IP.To4() != nil {
				continue
			}

			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}

			a.assigned[addr.Unmap()] = true
		}
	}

	return a
}

func (a *staticAddresses) Assign(_ string, addr netip.Addr, _ uint8, _, _ uint32) (err error) {
	a.assigned[addr] = true

	return nil
}

func (a *staticAddresses) IsAssigned(addr netip.Addr) (ok bool) { return a.assigned[addr] }

func (a *staticAddresses) Addresses() (addrs []netip.Addr) {
	addrs = make([]netip.Addr, 0, len(a.assigned))
	for addr := range a.assigned {
		addrs = append(addrs, addr)
	}

	return addrs
}
