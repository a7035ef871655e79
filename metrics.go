package ptree

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LeaderCollector exposes the control loop's counters in pull style:
// nothing is incremented through prometheus, Collect reads the live
// values on scrape.
type LeaderCollector struct {
	leader *Leader

	rpcServed     *prometheus.Desc
	rpcPeerErrors *prometheus.Desc
	peersInflight *prometheus.Desc
	commits       *prometheus.Desc

	actionsShipped *prometheus.Desc
	ringFull       *prometheus.Desc
	outboxDepth    *prometheus.Desc
}

func NewLeaderCollector(l *Leader) *LeaderCollector {
	return &LeaderCollector{
		leader: l,

		rpcServed: prometheus.NewDesc(
			"ptree_rpc_served_total",
			"Total RPC requests answered",
			nil, nil,
		),
		rpcPeerErrors: prometheus.NewDesc(
			"ptree_rpc_peer_errors_total",
			"Total peers terminated by framing or handler errors",
			nil, nil,
		),
		peersInflight: prometheus.NewDesc(
			"ptree_rpc_peers_inflight",
			"Connections currently inside the request state machine",
			nil, nil,
		),
		commits: prometheus.NewDesc(
			"ptree_config_commits_total",
			"Total configuration mutations committed",
			nil, nil,
		),
		actionsShipped: prometheus.NewDesc(
			"ptree_actions_shipped_total",
			"Action frames delivered into a follower's ring",
			[]string{"follower"}, nil,
		),
		ringFull: prometheus.NewDesc(
			"ptree_follower_ring_full_total",
			"Ticks cut short by follower ring backpressure",
			[]string{"follower"}, nil,
		),
		outboxDepth: prometheus.NewDesc(
			"ptree_follower_outbox_depth",
			"Frames waiting in a follower's outbox",
			[]string{"follower"}, nil,
		),
	}
}

func (c *LeaderCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rpcServed
	ch <- c.rpcPeerErrors
	ch <- c.peersInflight
	ch <- c.commits
	ch <- c.actionsShipped
	ch <- c.ringFull
	ch <- c.outboxDepth
}

func (c *LeaderCollector) Collect(ch chan<- prometheus.Metric) {
	l := c.leader
	ch <- prometheus.MustNewConstMetric(c.rpcServed, prometheus.CounterValue, float64(l.server.Served))
	ch <- prometheus.MustNewConstMetric(c.rpcPeerErrors, prometheus.CounterValue, float64(l.server.PeerErrors))
	ch <- prometheus.MustNewConstMetric(c.peersInflight, prometheus.GaugeValue, float64(l.server.Peers()))
	ch <- prometheus.MustNewConstMetric(c.commits, prometheus.CounterValue, float64(l.commits))
	for _, f := range l.followers {
		pid := strconv.Itoa(f.pid)
		ch <- prometheus.MustNewConstMetric(c.actionsShipped, prometheus.CounterValue, float64(f.Shipped), pid)
		ch <- prometheus.MustNewConstMetric(c.ringFull, prometheus.CounterValue, float64(f.RingFull), pid)
		ch <- prometheus.MustNewConstMetric(c.outboxDepth, prometheus.GaugeValue, float64(f.Pending()), pid)
	}
}
