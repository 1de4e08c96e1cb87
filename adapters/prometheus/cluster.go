package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/metrics"
)

// clusterMetrics implements cluster.ClusterMetrics using Prometheus.
type clusterMetrics struct {
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	nodeOutcomes    *prometheus.CounterVec
	redirectsTotal  *prometheus.CounterVec
}

// NewClusterMetrics creates a new Prometheus implementation of ClusterMetrics.
func NewClusterMetrics(reg prometheus.Registerer) cluster.ClusterMetrics {
	m := &clusterMetrics{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clstr_route_command_duration_seconds",
			Help:    "Routed command latency in seconds, redirects included",
			Buckets: defaultBuckets,
		}, []string{"route"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_route_commands_total",
			Help: "Total number of routed commands by result",
		}, []string{"route", "result"}),

		nodeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_route_node_outcomes_total",
			Help: "Total number of per-node outcomes by kind",
		}, []string{"kind"}),

		redirectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_route_redirects_total",
			Help: "Total number of redirects followed, and of redirect loops",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.commandDuration,
		m.commandsTotal,
		m.nodeOutcomes,
		m.redirectsTotal,
	)

	return m
}

func (m *clusterMetrics) CommandDuration(route string) metrics.Timer {
	return newTimer(m.commandDuration.WithLabelValues(route))
}

func (m *clusterMetrics) CommandCompleted(route string, result string) {
	m.commandsTotal.WithLabelValues(route, result).Inc()
}

func (m *clusterMetrics) NodeOutcome(kind string) {
	m.nodeOutcomes.WithLabelValues(kind).Inc()
}

func (m *clusterMetrics) Redirect(kind string) {
	m.redirectsTotal.WithLabelValues(kind).Inc()
}

var _ cluster.ClusterMetrics = (*clusterMetrics)(nil)
