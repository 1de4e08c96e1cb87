package topology

import "github.com/codewandler/clstr-route/core/metrics"

// Metrics instruments topology refreshes. All methods are thread-safe.
type Metrics interface {
	// RefreshDuration times one layout refresh, across all candidates.
	RefreshDuration() metrics.Timer
	RefreshCompleted(success bool)
	SnapshotInstalled(epoch uint64, nodes int)
}

type nopMetrics struct{}

func (nopMetrics) RefreshDuration() metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) RefreshCompleted(bool)          {}
func (nopMetrics) SnapshotInstalled(uint64, int)  {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
