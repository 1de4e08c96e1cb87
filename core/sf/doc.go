// Package sf provides a generic single-flight mechanism for deduplicating
// concurrent function calls with the same key.
//
// Only one execution of fn is in flight per key. Callers arriving while it
// runs join it and receive the same result instead of starting a second
// execution. The topology map uses this to turn a burst of redirect-triggered
// refreshes into a single layout query.
//
// # Usage
//
//	group := sf.New[topology.Snapshot]()
//
//	snap, shared, err := group.DoContext(ctx, "refresh", func() (*topology.Snapshot, error) {
//	    return queryLayout(detachedCtx)
//	})
//
// [Singleflight.DoContext] lets each joiner give up on its own deadline while
// the in-flight call continues for everyone else.
package sf
