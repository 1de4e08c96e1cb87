// Package prometheus provides Prometheus implementations of the routing
// metrics interfaces (cluster commands and topology refreshes).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-route/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

// AllMetrics bundles the metrics of a routed client.
type AllMetrics struct {
	Cluster  *clusterMetrics
	Topology *topologyMetrics
}

// NewAllMetrics registers every routing metric with reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Cluster:  NewClusterMetrics(reg).(*clusterMetrics),
		Topology: NewTopologyMetrics(reg).(*topologyMetrics),
	}
}
