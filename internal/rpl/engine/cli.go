package engine

import (
	"fmt"
	"strings"

	"rpld/internal/rpl/dodag"
	"rpld/internal/rpl/lollipop"
)

// commandHelp lists every CLI command this engine understands, in the order
// "help" prints them (spec Section 6).
var commandHelp = []struct {
	name, desc string
}{
	{"show-current-dodag", "show the currently active DODAG"},
	{"list-dodag-cache", "list every known DODAG version"},
	{"list-neighbors", "list known neighbors"},
	{"list-neighbors-verbose", "list known neighbors with full detail"},
	{"show-preferred-parent", "show the globally preferred parent"},
	{"show-dao-parent", "show the parent DAO messages are sent to"},
	{"list-parents", "list the current parent set"},
	{"list-parents-verbose", "list the current parent set with full detail"},
	{"global-repair", "trigger a global repair by incrementing the active DODAG's version"},
	{"local-repair", "trigger a local repair on every known DODAG"},
	{"subdodag-dao-update", "increment DTSN and request an updated DAO from the sub-DODAG"},
	{"list-routes", "list every route in the route cache"},
	{"list-downward-routes", "list downward routes of the active DODAG"},
	{"help", "show this message"},
}

// handleCLI dispatches a single CLI command line, grounded on the Python
// original's cli.py parser (spec Section 6). It always runs on the engine's
// own goroutine, so it may read and mutate engine state directly.
func (e *Engine) handleCLI(text string) (reply string) {
	switch strings.TrimSpace(text) {
	case "show-current-dodag":
		return e.cliShowCurrentDODAG()
	case "list-dodag-cache":
		return e.cliListDODAGCache()
	case "list-neighbors":
		return e.cliListNeighbors(false)
	case "list-neighbors-verbose":
		return e.cliListNeighbors(true)
	case "show-preferred-parent":
		return e.cliShowPreferredParent()
	case "show-dao-parent":
		return e.cliShowPreferredParent()
	case "list-parents":
		return e.cliListParents(false)
	case "list-parents-verbose":
		return e.cliListParents(true)
	case "global-repair":
		return e.cliGlobalRepair()
	case "local-repair":
		return e.cliLocalRepair()
	case "subdodag-dao-update":
		return e.cliSubDODAGDAOUpdate()
	case "list-routes":
		return e.cliListRoutes()
	case "list-downward-routes":
		return e.cliListDownwardRoutes()
	case "help":
		return e.cliHelp()
	default:
		return fmt.Sprintf("unknown command %q, try \"help\"", text)
	}
}

func (e *Engine) cliHelp() (reply string) {
	var b strings.Builder

	for _, c := range commandHelp {
		fmt.Fprintf(&b, "%-24s %s\n", c.name, c.desc)
	}

	return b.String()
}

func (e *Engine) cliShowCurrentDODAG() (reply string) {
	d := e.dodags.GetActiveDODAG()
	if d == nil {
		return "no active DODAG"
	}

	return formatDODAG(d)
}

func (e *Engine) cliListDODAGCache() (reply string) {
	versions := e.dodags.All()
	if len(versions) == 0 {
		return "DODAG cache is empty"
	}

	var b strings.Builder
	for _, d := range versions {
		fmt.Fprintln(&b, formatDODAG(d))
	}

	return b.String()
}

func formatDODAG(d *dodag.Version) (s string) {
	return fmt.Sprintf(
		"dodag_id=%s instance=%d version=%d rank=%d active=%t root=%t",
		d.DODAGID(), d.InstanceID(), d.VersionNumber(), d.Rank(), d.Active(), d.IsRoot(),
	)
}

func (e *Engine) cliListNeighbors(verbose bool) (reply string) {
	nodes := e.neighs.GetNeighborList()
	if len(nodes) == 0 {
		return "no known neighbors"
	}

	var b strings.Builder
	for _, n := range nodes {
		if verbose {
			fmt.Fprintf(&b, "address=%s iface=%s dodag=%s rank=%d dtsn=%s preferred=%t last_dio=%s\n",
				n.Address, n.Iface, n.DODAG.Key().DODAGID, n.Rank, n.DTSN, n.Preferred, n.LastDIO)
		} else {
			fmt.Fprintf(&b, "address=%s rank=%d preferred=%t\n", n.Address, n.Rank, n.Preferred)
		}
	}

	return b.String()
}

func (e *Engine) cliShowPreferredParent() (reply string) {
	p := e.neighs.GetPreferred()
	if p == nil {
		return "no preferred parent"
	}

	return fmt.Sprintf("address=%s iface=%s rank=%d", p.Address, p.Iface, p.Rank)
}

func (e *Engine) cliListParents(verbose bool) (reply string) {
	parents := e.neighs.GetParentList()
	if len(parents) == 0 {
		return "no parents"
	}

	var b strings.Builder
	for _, n := range parents {
		if verbose {
			fmt.Fprintf(&b, "address=%s iface=%s dodag=%s rank=%d dtsn=%s preferred=%t\n",
				n.Address, n.Iface, n.DODAG.Key().DODAGID, n.Rank, n.DTSN, n.Preferred)
		} else {
			fmt.Fprintf(&b, "address=%s rank=%d\n", n.Address, n.Rank)
		}
	}

	return b.String()
}

// cliGlobalRepair starts a new DODAG version, incrementing the active
// DODAG's version number and re-announcing it, mirroring the Python
// original's global_repair handler. Only meaningful at the root.
func (e *Engine) cliGlobalRepair() (reply string) {
	old := e.dodags.GetActiveDODAG()
	if old == nil {
		return "no active DODAG to repair"
	}

	if !old.IsRoot() {
		old.HearDIOInconsistent()

		return "not the root of the active DODAG; triggered a local repair instead"
	}

	seq, _ := lollipop.New(int(old.VersionNumber()))
	next := dodag.New(dodag.NewParams{
		Logger:     e.logger,
		Sender:     e.sender,
		Addrs:      e.addrs,
		Routes:     e.routes,
		Neighbors:  e.neighs,
		Interfaces: e.cfg.Interfaces,
		InstanceID: old.InstanceID(),
		DODAGID:    old.DODAGID(),
		Version:    uint8(seq.Inc().Val()),
		Grounded:   true,
		MOP:        2,
		IsRoot:     true,
		Config:     old.Config(),
	})

	// Downward routes are not carried over: the sub-DODAG re-reports them via
	// DAO once it adopts the new version.
	next.SetActive(true)
	old.SetActive(false)
	e.dodags.Add(next)
	e.metrics.DODAGCacheSize.Set(float64(len(e.dodags.All())))

	return fmt.Sprintf("started dodag_id=%s version=%d", next.DODAGID(), next.VersionNumber())
}

// cliLocalRepair resets every known DODAG's DIO Trickle timer to Imin,
// mirroring the Python original's local_repair handler.
func (e *Engine) cliLocalRepair() (reply string) {
	versions := e.dodags.All()
	for _, d := range versions {
		d.HearDIOInconsistent()
	}

	return fmt.Sprintf("triggered local repair on %d DODAG version(s)", len(versions))
}

// cliSubDODAGDAOUpdate increments the active DODAG's DTSN and resets its DIO
// Trickle timer, prompting children to send a fresh DAO (spec Section 4.10).
func (e *Engine) cliSubDODAGDAOUpdate() (reply string) {
	d := e.dodags.GetActiveDODAG()
	if d == nil {
		return "no active DODAG"
	}

	d.IncDTSN()
	d.HearDIOInconsistent()

	return fmt.Sprintf("dtsn=%s", d.DTSN())
}

func (e *Engine) cliListRoutes() (reply string) {
	routes := e.routes.Routes()
	if len(routes) == 0 {
		return "route cache is empty"
	}

	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "target=%s next_hop=%s iface=%s one_hop=%t\n", r.Target, r.NextHop, r.NextHopIface, r.OneHop)
	}

	return b.String()
}

func (e *Engine) cliListDownwardRoutes() (reply string) {
	d := e.dodags.GetActiveDODAG()
	if d == nil {
		return "no active DODAG"
	}

	routes := d.DownwardRoutesGet()
	if len(routes) == 0 {
		return "no downward routes"
	}

	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "target=%s next_hop=%s iface=%s\n", r.Target, r.NextHop, r.NextHopIface)
	}

	return b.String()
}
