package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds this engine's Prometheus instruments. They are per-Engine
// rather than package-level, since more than one
// engine (e.g. in tests) may run in a process; [Metrics.Register] wires them
// into a caller-supplied registry explicitly rather than the global default
// one.
type Metrics struct {
	DISSent        prometheus.Counter
	DISReceived    prometheus.Counter
	DIOSent        prometheus.Counter
	DIOReceived    prometheus.Counter
	DAOSent        prometheus.Counter
	DAOReceived    prometheus.Counter
	DAOACKSent     prometheus.Counter
	DAOACKReceived prometheus.Counter
	DAOACKMatched  prometheus.Counter

	ParentSwitches prometheus.Counter
	DAORetryGiveUp prometheus.Counter

	DODAGCacheSize prometheus.Gauge
}

// NewMetrics builds a Metrics with every instrument initialized but not yet
// registered with any registry.
func NewMetrics() (m *Metrics) {
	return &Metrics{
		DISSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dis_sent_total",
			Help: "Total number of DIS messages broadcast.",
		}),
		DISReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dis_received_total",
			Help: "Total number of DIS messages received.",
		}),
		DIOSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dio_sent_total",
			Help: "Total number of DIO messages sent.",
		}),
		DIOReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dio_received_total",
			Help: "Total number of DIO messages received.",
		}),
		DAOSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_sent_total",
			Help: "Total number of DAO messages sent.",
		}),
		DAOReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_received_total",
			Help: "Total number of DAO messages received.",
		}),
		DAOACKSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_ack_sent_total",
			Help: "Total number of DAO-ACK messages sent.",
		}),
		DAOACKReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_ack_received_total",
			Help: "Total number of DAO-ACK messages received.",
		}),
		DAOACKMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_ack_matched_total",
			Help: "Total number of status-0 DAO-ACK messages that canceled DAO retransmission.",
		}),
		ParentSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_parent_switches_total",
			Help: "Total number of times the globally preferred parent changed.",
		}),
		DAORetryGiveUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpl_dao_retry_exhausted_total",
			Help: "Total number of times a DAO-ACK retransmission budget was exhausted and the destination was evicted.",
		}),
		DODAGCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpl_dodag_cache_size",
			Help: "Current number of DODAG versions held in the DODAG cache.",
		}),
	}
}

// Register wires every instrument into registry.
func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.DISSent,
		m.DISReceived,
		m.DIOSent,
		m.DIOReceived,
		m.DAOSent,
		m.DAOReceived,
		m.DAOACKSent,
		m.DAOACKReceived,
		m.DAOACKMatched,
		m.ParentSwitches,
		m.DAORetryGiveUp,
		m.DODAGCacheSize,
	)
}
