package route

import (
	"fmt"
	"math/rand/v2"

	"github.com/codewandler/clstr-route/core/topology"
)

// Target is one node a command is sent to. Slot is the slot the node was
// chosen for, or -1 when the route is not slot based.
type Target struct {
	Node topology.Node
	Slot int
}

func (t Target) String() string { return t.Node.String() }

// Resolver turns directives into concrete targets.
type Resolver struct {
	intn func(n int) int
}

// NewResolver creates a Resolver. intn picks a uniform random int in [0, n)
// for random routes; nil uses math/rand/v2.
func NewResolver(intn func(n int) int) *Resolver {
	if intn == nil {
		intn = rand.IntN
	}
	return &Resolver{intn: intn}
}

// Resolve returns the targets d selects in snap. Multi-node policies return
// their targets sorted by address. Apart from the random choices the result
// depends only on d and snap.
func (r *Resolver) Resolve(d Directive, snap *topology.Snapshot) ([]Target, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: no topology", ErrNoNodes)
	}

	switch d.kind {
	case KindAllPrimaries:
		return allOf(snap.Primaries(), "primaries")
	case KindAllNodes:
		return allOf(snap.Nodes(), "nodes")
	case KindRandomNode:
		primaries := snap.Primaries()
		if len(primaries) == 0 {
			return nil, fmt.Errorf("%w: no primaries", ErrNoNodes)
		}
		return []Target{{Node: primaries[r.intn(len(primaries))], Slot: -1}}, nil
	case KindSlotKey, KindSlotID:
		t, err := r.ResolveSlot(d.slot, d.slotType, snap)
		if err != nil {
			return nil, err
		}
		return []Target{t}, nil
	case KindByAddress:
		n, ok := snap.Node(d.addr)
		if !ok {
			return nil, fmt.Errorf("%w: unknown node %s", ErrInvalidRoute, d.addr)
		}
		return []Target{{Node: n, Slot: -1}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoute, d)
	}
}

// ResolveSlot picks the node serving slot in snap.
func (r *Resolver) ResolveSlot(slot int, st SlotType, snap *topology.Snapshot) (Target, error) {
	if slot < 0 || slot >= topology.NumSlots {
		return Target{}, fmt.Errorf("%w: slot %d out of range", ErrInvalidRoute, slot)
	}
	owner, ok := snap.SlotOwner(slot)
	if !ok {
		return Target{}, fmt.Errorf("%w: slot %d is not assigned", ErrInvalidRoute, slot)
	}
	if st == SlotReplica {
		if replicas := snap.SlotReplicas(slot); len(replicas) > 0 {
			return Target{Node: replicas[r.intn(len(replicas))], Slot: slot}, nil
		}
	}
	return Target{Node: owner, Slot: slot}, nil
}

func allOf(nodes []topology.Node, what string) ([]Target, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no %s", ErrNoNodes, what)
	}
	out := make([]Target, len(nodes))
	for i, n := range nodes {
		out[i] = Target{Node: n, Slot: -1}
	}
	return out, nil
}
