// Package dodag implements a single DODAG version's state machine (spec
// Section 4.7): sending DIO/DAO/DAO-ACK messages, the DIO Trickle timer,
// the DAO delay and DAO-ACK retransmission timers, downward-route
// bookkeeping and poison/cleanup. The cache of DODAG versions lives in
// package dodagcache.
package dodag

import (
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"rpld/internal/rpl/lollipop"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/of0"
	"rpld/internal/rpl/routecache"
	"rpld/internal/rpl/rpladdr"
	"rpld/internal/rpl/trickle"
	"rpld/internal/rpl/wire"
)

// Default parameters, RFC 6550 Section 17 and the non-normative defaults
// this implementation carries forward.
const (
	DefaultPathControlSize        = 0
	DefaultDIOIntervalMin         = 3
	DefaultDIOIntervalDoublings   = 20
	DefaultDIORedundancyConstant  = 10
	DefaultMinHopRankIncrease     = 256
	DefaultDAODelay               = time.Second
	DefaultDAOACKDelay            = 2 * time.Second
	DefaultDAOMaxTransRetry       = 3
	DefaultDAONoPathTrans         = 3
	DefaultMaxRankIncrease        = 3 * DefaultMinHopRankIncrease
	RootRank                uint16 = DefaultMinHopRankIncrease
)

// LinkSender transmits wire messages over the RPL interfaces. It is an
// external collaborator out of scope for this package (spec Section 1).
type LinkSender interface {
	Send(iface string, dst netip.Addr, msg []byte) error
	Broadcast(msg []byte) error
}

// AddressSource reports the addresses currently assigned to this node, used
// to build RPL Target options for the node's own destinations in DAO
// messages.
type AddressSource interface {
	Addresses() []netip.Addr
}

// NeighborCache is the subset of the neighbor cache a DODAG version needs
// when its DAO-ACK retransmission budget is exhausted.
type NeighborCache interface {
	RemoveNodeByAddress(dodag neighbor.DODAGHandle, address netip.Addr) (updated bool)
	RemoveNodesByDODAG(dodag neighbor.DODAGHandle)
	UpdateDIOParent(dodags []neighbor.DODAGHandle) (changed bool)
}

// Config carries the DODAG Configuration option fields, learned from the
// DODAG root (or defaulted, if this node is the root).
type Config struct {
	Authenticated      bool
	PCS                uint8
	DIOIntDoublings    uint8
	DIOIntMin          uint8
	DIORedundancyConst uint8
	MaxRankIncrease    uint16
	MinHopRankIncrease uint16
	OCP                uint16
	DftLft             uint8
	LftUnit            uint16
}

// DefaultConfig returns the configuration a DODAG root uses absent any
// overriding policy.
func DefaultConfig() Config {
	return Config{
		PCS:                DefaultPathControlSize,
		DIOIntDoublings:    DefaultDIOIntervalDoublings,
		DIOIntMin:          DefaultDIOIntervalMin,
		DIORedundancyConst: DefaultDIORedundancyConstant,
		MaxRankIncrease:    DefaultMaxRankIncrease,
		MinHopRankIncrease: DefaultMinHopRankIncrease,
		DftLft:             0xff,
		LftUnit:            0xffff,
	}
}

// Version is one version of one DODAG: the unit of state spec Section 4.7
// describes. It implements [neighbor.DODAGHandle].
type Version struct {
	logger *slog.Logger
	sender LinkSender
	addrs  AddressSource
	routes *routecache.Cache
	neighs NeighborCache

	instanceID uint8
	dodagID    netip.Addr
	version    lollipop.Counter
	isRoot     bool

	grounded bool
	mop      uint8
	prf      uint8

	ifaces []string

	mu                   sync.Mutex
	dtsn                 lollipop.Counter
	active               bool
	rank                 uint16
	lowestRankAdvertised uint16
	advertisedPrefixes   []netip.Prefix
	cfg                  Config

	lastDAOSequence  lollipop.Counter
	lastPathSequence lollipop.Counter
	daoACKSource     netip.Addr
	daoACKSourceIface string
	daoTransRetry    int

	downwardRoutes    map[routeKey]routecache.Route
	noPathRoutes      map[routeKey]routecache.Route
	noPathRoutesTrans int

	preferredParent *neighbor.Node

	dioTimer    *trickle.Timer
	daoTimer    *time.Timer
	daoACKTimer *time.Timer

	lastDIO time.Time
}

type routeKey struct {
	Target  netip.Prefix
	NextHop netip.Addr
	Iface   string
}

func keyOf(r routecache.Route) routeKey {
	return routeKey{Target: r.Target, NextHop: r.NextHop, Iface: r.NextHopIface}
}

// NewParams groups Version's construction-time dependencies and initial
// DIO-derived values.
type NewParams struct {
	Logger     *slog.Logger
	Sender     LinkSender
	Addrs      AddressSource
	Routes     *routecache.Cache
	Neighbors  NeighborCache
	Interfaces []string

	InstanceID uint8
	DODAGID    netip.Addr
	Version    uint8
	Grounded   bool
	MOP        uint8
	Prf        uint8
	DTSN       uint8
	IsRoot     bool
	Config     Config
}

// New constructs a Version and arms its DIO Trickle timer. A root version's
// timer immediately fires (HearDIOInconsistent), matching the Python
// original.
func New(p NewParams) (v *Version) {
	version, err := lollipop.New(int(p.Version))
	if err != nil {
		version = lollipop.NewDefault()
	}

	dtsn, err := lollipop.New(int(p.DTSN))
	if err != nil {
		dtsn = lollipop.NewDefault()
	}

	rank := of0.InfiniteRank
	if p.IsRoot {
		rank = RootRank
	}

	v = &Version{
		logger:               p.Logger,
		sender:               p.Sender,
		addrs:                p.Addrs,
		routes:               p.Routes,
		neighs:               p.Neighbors,
		instanceID:           p.InstanceID,
		dodagID:              p.DODAGID,
		version:              version,
		isRoot:               p.IsRoot,
		grounded:             p.Grounded,
		mop:                  p.MOP,
		prf:                  p.Prf,
		ifaces:               p.Interfaces,
		dtsn:                 dtsn,
		rank:                 rank,
		lowestRankAdvertised: of0.InfiniteRank,
		cfg:                  p.Config,
		lastDAOSequence:      lollipop.NewDefault(),
		lastPathSequence:     lollipop.NewDefault(),
		downwardRoutes:       make(map[routeKey]routecache.Route),
		noPathRoutes:         make(map[routeKey]routecache.Route),
		lastDIO:              time.Now(),
	}

	v.setDIOTimer()
	if v.isRoot {
		v.dioTimer.HearInconsistent()
	}

	return v
}

// --- neighbor.DODAGHandle ---

func (v *Version) Key() neighbor.DODAGKey {
	return neighbor.DODAGKey{InstanceID: v.instanceID, DODAGID: v.dodagID, Version: v.version}
}

func (v *Version) InstanceID() uint8 { return v.instanceID }
func (v *Version) OCP() uint16       { return v.cfg.OCP }
func (v *Version) Grounded() bool    { return v.grounded }
func (v *Version) Prf() uint8        { return v.prf }

func (v *Version) Rank() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.rank
}

func (v *Version) SetRank(rank uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rank = rank
	if rank < v.lowestRankAdvertised {
		v.lowestRankAdvertised = rank
	}
}

func (v *Version) DAGRank(rank uint16) uint16 {
	return of0.DAGRank(rank, v.cfg.MinHopRankIncrease)
}

func (v *Version) ComputeRankIncrease(parentRank uint16) uint16 {
	return of0.ComputeRankIncrease(parentRank, v.cfg.MinHopRankIncrease)
}

func (v *Version) MaxRankIncrease() uint16 { return v.cfg.MaxRankIncrease }

func (v *Version) LowestRankAdvertised() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.lowestRankAdvertised
}

func (v *Version) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.active
}

func (v *Version) SetActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.active = active
}

func (v *Version) PreferredParent() *neighbor.Node {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.preferredParent
}

func (v *Version) SetPreferredParent(n *neighbor.Node) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.preferredParent = n
}

func (v *Version) DownwardRoutesGet() (rs []routecache.Route) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rs = make([]routecache.Route, 0, len(v.downwardRoutes))
	for _, r := range v.downwardRoutes {
		rs = append(rs, r)
	}

	return rs
}

func (v *Version) HearDIOInconsistent() {
	v.dioTimer.HearInconsistent()
}

// HearDIOConsistent records that a just-processed DIO agreed with this
// version's own state, incrementing the Trickle consistency counter.
func (v *Version) HearDIOConsistent() {
	v.dioTimer.HearConsistent()
}

// IsRoot reports whether this version is the DODAG root's.
func (v *Version) IsRoot() bool { return v.isRoot }

// DODAGID returns the DODAG identifier.
func (v *Version) DODAGID() netip.Addr { return v.dodagID }

// VersionNumber returns the raw DODAGVersionNumber.
func (v *Version) VersionNumber() uint8 { return uint8(v.version.Val()) }

// VersionCounter returns the DODAGVersionNumber as a lollipop counter, for
// ordering comparisons across versions (RFC 6550 Section 7.2).
func (v *Version) VersionCounter() lollipop.Counter { return v.version }

// --- message sending ---

// SendDIO broadcasts (or, if iface and dst are both given, unicasts) a DIO
// message advertising this version's current rank and configuration. When
// dodagShutdown is false and this version is not a root, it also arms the
// DAO delay timer, following the DIO with a scheduled DAO.
func (v *Version) SendDIO(iface string, dst netip.Addr, dodagShutdown bool) (err error) {
	v.mu.Lock()
	rank := v.rank
	dtsn := v.dtsn.Val()
	prefixes := append([]netip.Prefix(nil), v.advertisedPrefixes...)
	cfg := v.cfg
	v.mu.Unlock()

	var options []byte
	cfgOpt := wire.DODAGConfiguration{
		Authenticated:      cfg.Authenticated,
		PCS:                cfg.PCS,
		DIOIntDoublings:    cfg.DIOIntDoublings,
		DIOIntMin:          cfg.DIOIntMin,
		DIORedundancyConst: cfg.DIORedundancyConst,
		MaxRankIncrease:    cfg.MaxRankIncrease,
		MinHopRankIncrease: cfg.MinHopRankIncrease,
		OCP:                cfg.OCP,
		DftLft:             cfg.DftLft,
		LftUnit:            cfg.LftUnit,
	}
	options = cfgOpt.Append(options)

	for _, prefix := range prefixes {
		pio := wire.PrefixInformation{
			PrefixLength:      uint8(prefix.Bits()),
			A:                 true,
			ValidLifetime:     0xffffffff,
			PreferredLifetime: 0xffffffff,
			Prefix:            prefix.Addr(),
		}
		options = pio.Append(options)
	}

	dio := wire.DIO{
		InstanceID: v.instanceID,
		Version:    uint8(v.version.Val()),
		Rank:       rank,
		Grounded:   v.grounded,
		MOP:        v.mop,
		Prf:        v.prf,
		DTSN:       uint8(dtsn),
		DODAGID:    v.dodagID,
		Options:    options,
	}

	msg := dio.Encode(nil)

	if iface != "" && dst.IsValid() {
		err = v.sender.Send(iface, dst, msg)
	} else {
		err = v.sender.Broadcast(msg)
	}
	if err != nil {
		return err
	}

	if !v.isRoot && !dodagShutdown {
		v.setDAOTimer()
	}

	return nil
}

// SendDAO sends a DAO message to the preferred parent (or to dst/iface if
// given). nopath announces every downward route (and the node's own
// addresses) as withdrawn.
func (v *Version) SendDAO(iface string, dst netip.Addr, retransmit, nopath bool) (err error) {
	if !v.Active() && !nopath {
		return nil
	}

	v.mu.Lock()
	if !retransmit {
		v.lastDAOSequence = v.lastDAOSequence.Inc()
	}
	seq := v.lastDAOSequence.Val()
	v.mu.Unlock()

	if iface == "" && !dst.IsValid() {
		pref := v.PreferredParent()
		if pref == nil {
			return nil
		}

		iface, dst = pref.Iface, pref.Address
	}

	var options []byte

	for _, addr := range v.addrs.Addresses() {
		target := wire.RPLTarget{PrefixLength: 128, Prefix: addr.AsSlice()}
		options = target.Append(options)
	}

	switch {
	case rpladdr.IsAllRPLNodes(dst):
		transit := wire.TransitInformation{
			PathSequence: uint8(v.lastPathSequenceVal()),
			PathLifetime: v.cfg.DftLft,
		}
		if nopath {
			transit.PathLifetime = 0
		}
		options = transit.Append(options)

		dao := wire.DAO{
			InstanceID:  v.instanceID,
			K:           false,
			D:           true,
			DAOSequence: uint8(seq),
			DODAGID:     v.dodagID,
			Options:     options,
		}
		msg := dao.Encode(nil)

		return v.sender.Broadcast(msg)

	case rpladdr.IsLinkLocal(dst):
		v.mu.Lock()
		v.daoACKSource = dst
		v.daoACKSourceIface = iface
		v.mu.Unlock()
		v.setDAOACKTimer()

		for _, r := range v.routesSnapshot() {
			target := wire.RPLTarget{PrefixLength: uint8(r.Target.Bits()), Prefix: r.Target.Addr().AsSlice()}
			options = target.Append(options)
		}

		transit := wire.TransitInformation{
			PathSequence: uint8(v.lastPathSequenceVal()),
			PathLifetime: v.cfg.DftLft,
		}
		if nopath {
			transit.PathLifetime = 0
		}
		options = transit.Append(options)

		options = v.appendNoPathOptions(options)

		dao := wire.DAO{
			InstanceID:  v.instanceID,
			K:           true,
			D:           true,
			DAOSequence: uint8(seq),
			DODAGID:     v.dodagID,
			Options:     options,
		}
		msg := dao.Encode(nil)

		return v.sender.Send(iface, dst, msg)

	default:
		v.logger.Debug("DAO destination is neither link-local nor all-RPL-nodes, dropping", "destination", dst)

		return nil
	}
}

func (v *Version) routesSnapshot() map[routeKey]routecache.Route {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[routeKey]routecache.Route, len(v.downwardRoutes))
	for k, r := range v.downwardRoutes {
		out[k] = r
	}

	return out
}

func (v *Version) lastPathSequenceVal() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.lastPathSequence.Val()
}

func (v *Version) appendNoPathOptions(options []byte) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.noPathRoutesTrans >= DefaultDAONoPathTrans || len(v.noPathRoutes) == 0 {
		v.noPathRoutes = make(map[routeKey]routecache.Route)

		return options
	}

	v.noPathRoutesTrans++

	var any bool
	for k, r := range v.noPathRoutes {
		if _, reachable := v.downwardRoutes[k]; reachable {
			continue
		}

		target := wire.RPLTarget{PrefixLength: uint8(r.Target.Bits()), Prefix: r.Target.Addr().AsSlice()}
		options = target.Append(options)
		any = true
	}

	if any {
		transit := wire.TransitInformation{PathSequence: uint8(v.lastPathSequence.Val()), PathLifetime: 0}
		options = transit.Append(options)
	}

	return options
}

// SendTwoDAOs sends a multicast DAO for the node's own destinations and a
// unicast DAO announcing all known downward routes, provided this version
// is currently active.
func (v *Version) SendTwoDAOs() {
	if !v.Active() {
		return
	}

	_ = v.SendDAO("", rpladdr.AllRPLNodes, true, false)
	_ = v.SendDAO("", netip.Addr{}, false, false)
}

// SendDAOACK sends a DAO-ACK in response to a DAO. dodagID is included only
// when the triggering DAO had the D flag set.
func (v *Version) SendDAOACK(iface string, dst netip.Addr, daoSequence uint8, dodagID netip.Addr) (err error) {
	ack := wire.DAOACK{InstanceID: v.instanceID, DAOSequence: daoSequence, Status: 0}
	if dodagID.IsValid() {
		ack.D = true
		ack.DODAGID = dodagID
	}

	msg := ack.Encode(nil)

	return v.sender.Send(iface, dst, msg)
}

// --- timers ---

func (v *Version) setDIOTimer() {
	if v.dioTimer != nil {
		v.dioTimer.Stop()
	}

	imin := time.Millisecond * time.Duration(1<<v.cfg.DIOIntMin)
	v.dioTimer = trickle.New(trickle.Config{
		Imin:       imin,
		Doublings:  uint(v.cfg.DIOIntDoublings),
		K:          uint(v.cfg.DIORedundancyConst),
		Fire:       func() { _ = v.SendDIO("", netip.Addr{}, false) },
	})
	v.dioTimer.Start()
}

// setDAOTimer arms a one-shot delay before sending a pair of aggregated
// DAOs, ignoring repeat calls while already armed so route changes can
// coalesce into a single DAO (spec Section 4.7).
func (v *Version) setDAOTimer() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.daoTimer != nil {
		return
	}

	v.daoTimer = time.AfterFunc(DefaultDAODelay, func() {
		v.mu.Lock()
		v.daoTimer = nil
		v.mu.Unlock()

		v.SendTwoDAOs()
	})
}

// setDAOACKTimer arms the retransmission timer for an unacknowledged DAO.
// Once the retry budget is exhausted, the unreachable destination is
// evicted from the neighbor cache and, if it was the preferred parent, a
// replacement is sought.
func (v *Version) setDAOACKTimer() {
	v.cancelDAOACKTimer()

	v.mu.Lock()
	if v.daoTransRetry >= DefaultDAOMaxTransRetry {
		v.daoTransRetry = 0
		source := v.daoACKSource
		v.mu.Unlock()

		if v.neighs.RemoveNodeByAddress(v, source) {
			if v.neighs.UpdateDIOParent([]neighbor.DODAGHandle{v}) {
				v.dioTimer.HearInconsistent()
			}
		}

		return
	}

	v.daoTransRetry++
	iface, dst := v.daoACKSourceIface, v.daoACKSource
	v.mu.Unlock()

	v.daoACKTimer = time.AfterFunc(DefaultDAOACKDelay, func() {
		_ = v.SendDAO(iface, dst, true, false)
	})
}

func (v *Version) cancelDAOACKTimer() {
	v.mu.Lock()
	t := v.daoACKTimer
	v.daoACKTimer = nil
	v.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// CancelDAOACKTimer is the exported form, called once a DAO-ACK arrives; it
// also clears the retransmission count.
func (v *Version) CancelDAOACKTimer() {
	v.cancelDAOACKTimer()

	v.mu.Lock()
	v.daoTransRetry = 0
	v.mu.Unlock()
}

// --- downward routes ---

// DownwardRouteAdd records a downward route, unless its target is an
// address assigned to this node.
func (v *Version) DownwardRouteAdd(r routecache.Route, selfAssigned bool) {
	if selfAssigned {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.downwardRoutes[keyOf(r)] = r
}

// DownwardRouteDel removes a downward route, recording it as needing a
// No-Path announcement.
func (v *Version) DownwardRouteDel(r routecache.Route) {
	v.mu.Lock()
	defer v.mu.Unlock()

	k := keyOf(r)
	if _, ok := v.downwardRoutes[k]; !ok {
		return
	}

	delete(v.downwardRoutes, k)
	v.noPathRoutesTrans = 0
	v.noPathRoutes[k] = r
}

// DownwardRoutesReset drops every downward route for this version,
// withdrawing them from the route cache.
func (v *Version) DownwardRoutesReset() {
	v.mu.Lock()
	routes := make([]routecache.Route, 0, len(v.downwardRoutes))
	for _, r := range v.downwardRoutes {
		routes = append(routes, r)
	}
	v.downwardRoutes = make(map[routeKey]routecache.Route)
	v.mu.Unlock()

	v.routes.RemoveRoutes(routes)
}

// DownwardRoutesRemoveByNexthop removes every downward route through
// address, reflecting the removal in the route cache if this version is
// active. It reports whether anything changed.
func (v *Version) DownwardRoutesRemoveByNexthop(address netip.Addr) (updated bool) {
	v.mu.Lock()
	var toRemove []routecache.Route
	for _, r := range v.downwardRoutes {
		if r.NextHop == address {
			toRemove = append(toRemove, r)
		}
	}
	active := v.active
	v.mu.Unlock()

	for _, r := range toRemove {
		v.DownwardRouteDel(r)
		if active {
			updated = v.routes.Remove(r) || updated
		}
	}

	return updated
}

// GetFilteredDownwardRoutes resolves conflicting downward routes to the
// same target, preferring one-hop routes and otherwise the lower-DAGRank
// next hop (spec Section 4.7). lookupNode resolves a (iface, address) pair
// to its neighbor-cache rank, when known.
func (v *Version) GetFilteredDownwardRoutes(
	lookupNode func(iface string, addr netip.Addr) (rank uint16, ok bool),
) (removed, kept []routecache.Route) {
	v.mu.Lock()
	defer v.mu.Unlock()

	chosen := make(map[netip.Prefix]routecache.Route)

	for _, r := range v.downwardRoutes {
		current, ok := chosen[r.Target]
		if !ok {
			chosen[r.Target] = r

			continue
		}

		if current.OneHop {
			removed = append(removed, r)

			continue
		}

		if r.OneHop {
			removed = append(removed, current)
			chosen[r.Target] = r

			continue
		}

		curRank, curOK := lookupNode(current.NextHopIface, current.NextHop)
		newRank, newOK := lookupNode(r.NextHopIface, r.NextHop)

		switch {
		case !newOK:
			removed = append(removed, r)
		case !curOK:
			removed = append(removed, current)
			chosen[r.Target] = r
		case v.DAGRank(newRank) >= v.DAGRank(curRank):
			removed = append(removed, r)
		default:
			removed = append(removed, current)
			chosen[r.Target] = r
		}
	}

	kept = make([]routecache.Route, 0, len(chosen))
	for _, r := range chosen {
		kept = append(kept, r)
	}

	return removed, kept
}

// Poison sets this version's rank to infinite and sends a final DIO. On
// shutdown it first sends No-Path DAOs for its own destinations and, if a
// preferred parent exists, for its downward routes too.
func (v *Version) Poison(shutdown bool) {
	v.logger.Debug("poisoning DODAG", "dodag", v.dodagID, "version", v.version)

	if shutdown {
		_ = v.SendDAO("", rpladdr.AllRPLNodes, false, true)

		if v.PreferredParent() != nil {
			_ = v.SendDAO("", netip.Addr{}, false, true)
		}
	}

	v.SetRank(of0.InfiniteRank)
	_ = v.SendDIO("", netip.Addr{}, true)
}

// Cleanup stops every timer this version owns and evicts its neighbors from
// the neighbor cache. Once called the version must not be used again.
func (v *Version) Cleanup() {
	v.dioTimer.Stop()
	v.cancelDAOACKTimer()

	v.mu.Lock()
	daoTimer := v.daoTimer
	v.daoTimer = nil
	v.mu.Unlock()

	if daoTimer != nil {
		daoTimer.Stop()
	}

	v.neighs.RemoveNodesByDODAG(v)
}

// AddAdvertisedPrefix appends prefix to the set of prefixes advertised in
// this version's DIO messages (Prefix Information option).
func (v *Version) AddAdvertisedPrefix(prefix netip.Prefix) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.advertisedPrefixes = append(v.advertisedPrefixes, prefix)
}

// SetLastDIO records the time a DIO was last received for this version.
func (v *Version) SetLastDIO(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastDIO = t
}

// LastDIO returns the time a DIO was last received for this version.
func (v *Version) LastDIO() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.lastDIO
}

// ApplyConfig updates the learned DODAG Configuration option fields. The
// running DIO Trickle timer is not rebuilt: it keeps the Imin, doublings and
// redundancy constant it was created with in [New], so a changed
// DIOIntMin, DIOIntDoublings or DIORedundancyConst only changes the stored
// values (and those advertised in this version's DIOs).
func (v *Version) ApplyConfig(cfg Config) {
	v.mu.Lock()
	v.cfg = cfg
	v.mu.Unlock()
}

// Config returns a copy of the current DODAG Configuration option fields.
func (v *Version) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.cfg
}

// DTSN returns the current Destination Advertisement Trigger Sequence
// Number.
func (v *Version) DTSN() lollipop.Counter {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.dtsn
}

// IncDTSN increments the DTSN, used to trigger downward-route refresh
// across the sub-DODAG.
func (v *Version) IncDTSN() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dtsn = v.dtsn.Inc()
}
