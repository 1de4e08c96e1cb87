package cluster

import "github.com/codewandler/clstr-route/core/metrics"

// ClusterMetrics instruments routed commands. All methods are thread-safe.
type ClusterMetrics interface {
	// CommandDuration times one ExecuteRouted call, redirects included.
	CommandDuration(route string) metrics.Timer
	// CommandCompleted records the result of a call: "ok" or the error kind.
	CommandCompleted(route string, result string)

	// NodeOutcome counts settled per-node outcomes by kind.
	NodeOutcome(kind string)
	// Redirect counts followed redirects: MOVED, ASK or loop.
	Redirect(kind string)
}

type nopClusterMetrics struct{}

func (nopClusterMetrics) CommandDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopClusterMetrics) CommandCompleted(string, string)      {}
func (nopClusterMetrics) NodeOutcome(string)                   {}
func (nopClusterMetrics) Redirect(string)                      {}

// NopClusterMetrics returns a no-op ClusterMetrics implementation.
func NopClusterMetrics() ClusterMetrics { return nopClusterMetrics{} }
