// Package metrics declares the small instrumentation surface shared by the
// routing core. Backends (see adapters/prometheus) implement the per-package
// metrics interfaces; the core packages fall back to no-op implementations
// when nothing is configured.
package metrics

// Timer measures one operation. Create it when the operation starts and call
// ObserveDuration when it ends:
//
//	defer m.CommandDuration("all_primaries").ObserveDuration()
type Timer interface {
	ObserveDuration()
}
