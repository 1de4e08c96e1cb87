package cluster

import (
	"maps"
	"slices"
)

// Result is the value of a routed command: a single reply when the command
// went to one node under a single-node route, or one reply per node
// otherwise.
type Result struct {
	multi  bool
	single any
	values map[string]any
}

// Single creates a single-node Result.
func Single(v any) Result { return Result{single: v} }

// Multi creates a per-node Result keyed by node address.
func Multi(values map[string]any) Result {
	if values == nil {
		values = map[string]any{}
	}
	return Result{multi: true, values: values}
}

func (r Result) IsMulti() bool { return r.multi }

// Value returns the reply of a single-node result, nil for multi results.
func (r Result) Value() any { return r.single }

// Values returns the replies of a multi result keyed by node address. Every
// targeted node has an entry, even if its reply is nil.
func (r Result) Values() map[string]any { return r.values }

// Addrs returns the addresses of a multi result, sorted.
func (r Result) Addrs() []string {
	return slices.Sorted(maps.Keys(r.values))
}
