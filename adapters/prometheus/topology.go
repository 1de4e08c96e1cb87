package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-route/core/metrics"
	"github.com/codewandler/clstr-route/core/topology"
)

// topologyMetrics implements topology.Metrics using Prometheus.
type topologyMetrics struct {
	refreshDuration prometheus.Histogram
	refreshesTotal  *prometheus.CounterVec
	epoch           prometheus.Gauge
	nodes           prometheus.Gauge
}

// NewTopologyMetrics creates a new Prometheus implementation of topology.Metrics.
func NewTopologyMetrics(reg prometheus.Registerer) topology.Metrics {
	m := &topologyMetrics{
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clstr_route_topology_refresh_duration_seconds",
			Help:    "Topology refresh latency in seconds",
			Buckets: defaultBuckets,
		}),

		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_route_topology_refreshes_total",
			Help: "Total number of topology refreshes",
		}, []string{"success"}),

		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_route_topology_epoch",
			Help: "Epoch of the installed topology snapshot",
		}),

		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_route_topology_nodes",
			Help: "Number of nodes in the installed topology snapshot",
		}),
	}

	reg.MustRegister(
		m.refreshDuration,
		m.refreshesTotal,
		m.epoch,
		m.nodes,
	)

	return m
}

func (m *topologyMetrics) RefreshDuration() metrics.Timer {
	return newTimer(m.refreshDuration)
}

func (m *topologyMetrics) RefreshCompleted(success bool) {
	m.refreshesTotal.WithLabelValues(boolToStr(success)).Inc()
}

func (m *topologyMetrics) SnapshotInstalled(epoch uint64, nodes int) {
	m.epoch.Set(float64(epoch))
	m.nodes.Set(float64(nodes))
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ topology.Metrics = (*topologyMetrics)(nil)
