package engine

import (
	"net"
	"net/netip"
	"time"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/dodagcache"
	"rpld/internal/rpl/lollipop"
	"rpld/internal/rpl/neighbor"
	"rpld/internal/rpl/of0"
	"rpld/internal/rpl/routecache"
	"rpld/internal/rpl/rpladdr"
	"rpld/internal/rpl/wire"
)

// handleDIS implements the DIS handler (spec Section 4.10).
func (e *Engine) handleDIS(f Frame, payload []byte) {
	if e.dodags.IsEmpty() {
		e.logger.Debug("dropping DIS, not attached to any DODAG")

		return
	}

	dis, err := wire.ParseDIS(payload)
	if err != nil {
		e.logger.Debug("unable to parse DIS", "error", err)

		return
	}

	var dodagID *netip.Addr
	var instanceID *uint8
	var version *uint8

	if opt, ok, err := wire.FindOption(dis.Options, wire.OptSolicitedInfo, 0); err == nil && ok {
		si, err := wire.ParseSolicitedInformation(opt.Payload)
		if err != nil {
			e.logger.Debug("unable to parse Solicited Information option", "error", err)
		} else {
			if si.V {
				version = &si.Version
			}

			if si.I {
				instanceID = &si.InstanceID
			}

			if si.D {
				dodagID = &si.DODAGID
			}
		}
	}

	filter := dodagcache.Filter{DODAGID: dodagID, Version: version, InstanceID: instanceID}

	if rpladdr.IsAllRPLNodes(f.Dst) {
		e.logger.Debug("DIS is multicast, signaling trickle inconsistency on matching DODAGs")

		for _, d := range e.dodags.GetDODAG(filter) {
			d.HearDIOInconsistent()
		}

		return
	}

	if dodagID != nil || instanceID != nil || version != nil {
		e.logger.Debug("DIS is unicast with solicited information, sending unicast DIO(s)")

		for _, d := range e.dodags.GetDODAG(filter) {
			_ = d.SendDIO(f.Iface, f.Src, false)
		}

		return
	}

	e.logger.Debug("DIS is unicast with no solicited information, sending unicast DIO from the active DODAG")

	if active := e.dodags.GetActiveDODAG(); active != nil {
		_ = active.SendDIO(f.Iface, f.Src, false)
	}
}

// handleDIO implements the DIO handler (spec Section 4.10).
func (e *Engine) handleDIO(f Frame, payload []byte) {
	dio, err := wire.ParseDIO(payload)
	if err != nil {
		e.logger.Debug("unable to parse DIO", "error", err)

		return
	}

	if !e.instanceSet {
		e.instanceID = dio.InstanceID
		e.instanceSet = true
	}

	if dio.InstanceID != e.instanceID {
		e.logger.Debug("ignoring DIO for a different RPL instance", "instance_id", dio.InstanceID)

		return
	}

	instanceID := dio.InstanceID
	dodagID := dio.DODAGID
	version := dio.Version

	matches := e.dodags.GetDODAG(dodagcache.Filter{DODAGID: &dodagID, Version: &version, InstanceID: &instanceID})

	var d *dodag.Version
	consistent := true

	switch {
	case len(matches) > 0 && matches[0].IsRoot():
		e.logger.Debug("this node is the root for this DODAG, dropping DIO")

		return

	case len(matches) > 0:
		d = matches[0]
		consistent = e.updateKnownDODAG(d, f, dio)

	default:
		var ok bool
		d, consistent, ok = e.acceptNewDODAGVersion(f, dio)
		if !ok {
			return
		}
	}

	e.applyDIOOptions(d, f, dio)

	if dio.Rank != of0.InfiniteRank {
		e.neighs.RegisterNode(f.Iface, f.Src, d, dio.Rank, dio.DTSN)
	}

	if e.neighs.UpdateDIOParent(e.allHandles()) {
		consistent = false
	}

	if d.PreferredParent() == nil && d.Rank() != of0.InfiniteRank {
		d.SetRank(of0.InfiniteRank)
		consistent = false
	}

	e.dodags.PurgeOldVersions()
	e.metrics.DODAGCacheSize.Set(float64(len(e.dodags.All())))

	if consistent {
		d.HearDIOConsistent()
	} else {
		d.HearDIOInconsistent()
	}
}

// updateKnownDODAG handles a DIO matching a DODAG version already in the
// cache: it records the DIO time, evicts an infinite-rank neighbor, and
// resets downward routes when a parent's DTSN increased. It does not update
// the version's Prf; the neighbor's DTSN is refreshed afterwards when
// handleDIO re-registers the sender.
func (e *Engine) updateKnownDODAG(d *dodag.Version, f Frame, dio wire.DIO) (consistent bool) {
	consistent = true
	d.SetLastDIO(time.Now())

	node, hasNode := e.neighs.GetNode(f.Iface, f.Src, d)
	if dio.Rank == of0.InfiniteRank && hasNode {
		e.logger.Debug("neighbor advertises infinite rank, removing", "address", f.Src)

		if e.neighs.RemoveNodeByAddress(d, f.Src) {
			consistent = false
		}
	} else if hasNode {
		if node.DTSN.Val() < int(dio.DTSN) && e.isParent(node) {
			e.logger.Info("parent increased its DTSN, scheduling a DAO message", "address", f.Src)

			d.DownwardRoutesReset()
			consistent = false
		}
	}

	return consistent
}

func (e *Engine) isParent(n *neighbor.Node) bool {
	for _, p := range e.neighs.GetParentList() {
		if p == n {
			return true
		}
	}

	return false
}

// acceptNewDODAGVersion handles a DIO for an unknown (dodagID, version,
// instanceID): either a brand new DODAG, a global-repair version bump of a
// known dodagID, or a stale version to be dropped.
func (e *Engine) acceptNewDODAGVersion(f Frame, dio wire.DIO) (d *dodag.Version, consistent bool, ok bool) {
	instanceID := dio.InstanceID
	oldVersions := e.dodags.GetDODAG(dodagcache.Filter{DODAGID: &dio.DODAGID, InstanceID: &instanceID})

	dioVersion, err := lollipop.New(int(dio.Version))
	if err != nil {
		dioVersion = lollipop.NewDefault()
	}

	var mostRecent, leastRecent *dodag.Version

	for _, v := range oldVersions {
		if v.IsRoot() {
			e.logger.Debug("this node is the root for this DODAG, dropping DIO")

			return nil, false, false
		}

		if mostRecent == nil || v.VersionCounter().Compare(mostRecent.VersionCounter()) > 0 {
			mostRecent = v
		}

		if leastRecent == nil || v.VersionCounter().Compare(leastRecent.VersionCounter()) < 0 {
			leastRecent = v
		}
	}

	if mostRecent != nil && dioVersion.Compare(leastRecent.VersionCounter()) < 0 {
		e.logger.Debug("DIO is from an older DODAG version, dropped")

		return nil, false, false
	}

	if dio.Rank == of0.InfiniteRank || !dio.Grounded || dio.MOP != 2 {
		e.logger.Debug("dropping DIO for a new DODAG: not grounded, infinite rank, or unsupported MOP")

		return nil, false, false
	}

	e.logger.Info("accepting DIO for a new DODAG version", "dodag_id", dio.DODAGID, "version", dio.Version)

	d = dodag.New(dodag.NewParams{
		Logger:     e.logger,
		Sender:     e.sender,
		Addrs:      e.addrs,
		Routes:     e.routes,
		Neighbors:  e.neighs,
		Interfaces: e.cfg.Interfaces,
		InstanceID: dio.InstanceID,
		DODAGID:    dio.DODAGID,
		Version:    dio.Version,
		Grounded:   dio.Grounded,
		MOP:        dio.MOP,
		Prf:        dio.Prf,
		DTSN:       dio.DTSN,
		Config:     dodag.DefaultConfig(),
	})

	e.dodags.Add(d)

	return d, false, true
}

// applyDIOOptions processes the DIO's trailing options (spec Section 4.10).
func (e *Engine) applyDIOOptions(d *dodag.Version, f Frame, dio wire.DIO) {
	opts, err := wire.GetAllOptions(dio.Options)
	if err != nil {
		e.logger.Debug("unable to parse DIO options", "error", err)

		return
	}

	for _, opt := range opts {
		switch opt.Type {
		case wire.OptDODAGConfiguration:
			cfg, err := wire.ParseDODAGConfiguration(opt.Payload)
			if err != nil {
				e.logger.Debug("unable to parse DODAG Configuration option", "error", err)

				continue
			}

			d.ApplyConfig(dodag.Config{
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
			})

		case wire.OptPrefixInformation:
			pio, err := wire.ParsePrefixInformation(opt.Payload)
			if err != nil {
				e.logger.Debug("unable to parse Prefix Information option", "error", err)

				continue
			}

			e.applyPrefixInformation(d, f, pio)

		case wire.OptDAGMetricContainer:
			// Metric Container semantics are a non-goal (spec Section 1).
		}
	}
}

// applyPrefixInformation derives and assigns one address per interface from
// a /64 autonomous-configuration prefix (spec Section 4.10, 4.4).
func (e *Engine) applyPrefixInformation(d *dodag.Version, f Frame, pio wire.PrefixInformation) {
	if !pio.A {
		return
	}

	if pio.PrefixLength != 64 {
		e.logger.Debug("cannot derive an address from a prefix whose length is not 64 bits")

		return
	}

	prefixAddr := pio.Prefix
	prefix := netip.PrefixFrom(prefixAddr, 64).Masked()

	for _, iface := range e.cfg.Interfaces {
		hw, err := hardwareAddr(iface)
		if err != nil {
			e.logger.Debug("unable to resolve hardware address", "iface", iface, "error", err)

			continue
		}

		addr, err := rpladdr.DeriveAddress(prefix.Addr(), hw)
		if err != nil {
			e.logger.Debug("unable to derive address", "iface", iface, "error", err)

			continue
		}

		if err = e.addrs.Assign(iface, addr, 64, pio.ValidLifetime, pio.PreferredLifetime); err != nil {
			e.logger.Warn("failed to assign derived address", "iface", iface, "address", addr, "error", err)
		}
	}

	d.AddAdvertisedPrefix(prefix)
}

// hardwareAddr resolves iface's hardware address via the standard library,
// the one ambient OS-facing lookup this package performs directly rather
// than through an adapter, since it is pure local enumeration with no RPL
// semantics of its own.
func hardwareAddr(iface string) (hw net.HardwareAddr, err error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}

	return ifi.HardwareAddr, nil
}

func (e *Engine) allHandles() (handles []neighbor.DODAGHandle) {
	for _, d := range e.dodags.All() {
		handles = append(handles, d)
	}

	return handles
}

// handleDAO implements the DAO handler (spec Section 4.10).
func (e *Engine) handleDAO(f Frame, payload []byte) {
	isMulticast := rpladdr.IsAllRPLNodes(f.Dst)
	if !isMulticast && !e.addrs.IsAssigned(f.Dst) {
		e.logger.Debug("DAO is for a different node, dropping")

		return
	}

	dao, err := wire.ParseDAO(payload)
	if err != nil {
		e.logger.Debug("unable to parse DAO", "error", err)

		return
	}

	if e.dodags.IsEmpty() || !e.instanceSet || dao.InstanceID != e.instanceID {
		e.logger.Debug("not participating in this instanceID, cannot process DAO")

		return
	}

	if isMulticast && dao.K {
		e.logger.Debug("multicast DAO cannot request an acknowledgment, dropping")

		return
	}

	d := e.dodags.GetActiveDODAG()
	if d == nil {
		e.logger.Debug("no active DODAG, dropping DAO")

		return
	}

	if dao.D && d.DODAGID() != dao.DODAGID {
		e.logger.Debug("DAO DODAGID does not match the active DODAG, dropping", "dao_dodag_id", dao.DODAGID)

		return
	}

	opts, err := wire.GetAllOptions(dao.Options)
	if err != nil {
		e.logger.Debug("unable to parse DAO options", "error", err)

		return
	}

	routeUpdated := e.processDAOTargets(d, f, isMulticast, opts)

	if dao.K {
		_ = d.SendDAOACK(f.Iface, f.Src, dao.DAOSequence, dao.DODAGID)
	}

	// No DAO is armed and the path sequence is not incremented here; a
	// non-root node's next DAO pair is armed when its DIO Trickle timer next
	// sends a DIO.
	if routeUpdated && !d.IsRoot() {
		e.logger.Debug("downward routes updated")
	}
}

// processDAOTargets groups Target options with their following Transit
// Information option and reconciles the downward-route and route caches
// (spec Section 4.10).
func (e *Engine) processDAOTargets(d *dodag.Version, f Frame, isMulticast bool, opts []wire.Option) (routeUpdated bool) {
	var targets []routecache.Route

	for _, opt := range opts {
		switch opt.Type {
		case wire.OptRPLTarget:
			t, err := wire.ParseRPLTarget(opt.Payload)
			if err != nil {
				e.logger.Debug("unable to parse RPL Target option", "error", err)

				continue
			}

			prefix, ok := prefixFromTarget(t)
			if !ok {
				continue
			}

			targets = append(targets, routecache.Route{
				Target:       prefix,
				NextHop:      f.Src,
				NextHopIface: f.Iface,
				OneHop:       isMulticast,
			})

		case wire.OptTransitInformation:
			transit, err := wire.ParseTransitInformation(opt.Payload)
			if err != nil {
				e.logger.Debug("unable to parse Transit Information option", "error", err)

				targets = nil

				continue
			}

			if transit.External {
				e.logger.Debug("E flag is not supported for Transit Information, dropping DAO")

				return routeUpdated
			}

			if transit.PathControl != 0 {
				e.logger.Debug("nonzero path control is not supported, dropping DAO")

				return routeUpdated
			}

			switch transit.PathLifetime {
			case 0:
				for _, t := range targets {
					d.DownwardRouteDel(t)
				}

				removed := e.routes.RemoveRoutes(targets)
				routeUpdated = routeUpdated || len(removed) > 0

			case 0xff:
				for _, t := range targets {
					d.DownwardRouteAdd(t, e.addrs.IsAssigned(t.Target.Addr()))
				}

			default:
				e.logger.Debug("path lifetime other than 0 or infinite is not supported, dropping DAO")

				return routeUpdated
			}

			removedRoutes, newRoutes := d.GetFilteredDownwardRoutes(e.lookupNodeRank)
			removed := e.routes.RemoveRoutes(removedRoutes)
			added := e.routes.AddRoutes(newRoutes)
			routeUpdated = routeUpdated || len(removed) > 0 || len(added) > 0

			targets = nil
		}
	}

	return routeUpdated
}

func prefixFromTarget(t wire.RPLTarget) (prefix netip.Prefix, ok bool) {
	var full [16]byte
	copy(full[:], t.Prefix)

	addr := netip.AddrFrom16(full)

	p := netip.PrefixFrom(addr, int(t.PrefixLength))
	if !p.IsValid() {
		return netip.Prefix{}, false
	}

	return p.Masked(), true
}

func (e *Engine) lookupNodeRank(iface string, addr netip.Addr) (rank uint16, ok bool) {
	for _, d := range e.dodags.All() {
		if n, found := e.neighs.GetNode(iface, addr, d); found {
			return n.Rank, true
		}
	}

	return 0, false
}

// handleDAOACK implements the DAO-ACK handler (spec Section 4.10). The
// ACK's source and DAOSequence are not compared with the outstanding DAO:
// any status-0 DAO-ACK for the indicated DODAG cancels its retransmission.
func (e *Engine) handleDAOACK(f Frame, payload []byte) {
	ack, rest, err := wire.ParseDAOACK(payload)
	if err != nil {
		e.logger.Debug("unable to parse DAO-ACK", "error", err)

		return
	}

	if e.dodags.IsEmpty() || !e.instanceSet || ack.InstanceID != e.instanceID {
		e.logger.Debug("not participating in this instanceID, cannot process DAO-ACK")

		return
	}

	if len(rest) != 0 {
		e.logger.Debug("DAO-ACK should carry no options, dropping")

		return
	}

	var d *dodag.Version

	if ack.D {
		instanceID := ack.InstanceID
		matches := e.dodags.GetDODAG(dodagcache.Filter{DODAGID: &ack.DODAGID, InstanceID: &instanceID})
		if len(matches) == 0 {
			e.logger.Debug("DAO-ACK indicates an unknown DODAG ID, dropping", "dodag_id", ack.DODAGID)

			return
		}

		d = matches[len(matches)-1]
	} else {
		d = e.dodags.GetActiveDODAG()
		if d == nil {
			return
		}
	}

	if ack.Status == 0 {
		e.logger.Debug("DAO-ACK received, disabling retransmission", "source", f.Src)
		d.CancelDAOACKTimer()
		e.metrics.DAOACKMatched.Inc()
	} else {
		e.logger.Debug("DAO-ACK indicates a non-zero status", "status", ack.Status)
	}
}
