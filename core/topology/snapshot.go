package topology

import (
	"fmt"
	"slices"
	"strings"
)

// SlotRange assigns the inclusive slot range [Start, End] to Primary.
// Replicas replicate the range.
type SlotRange struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Primary  string   `json:"primary"`
	Replicas []string `json:"replicas,omitempty"`
}

// Layout is the serializable description of a cluster, as returned by a
// layout query.
type Layout struct {
	Ranges []SlotRange `json:"ranges"`
	// Nodes lists nodes that own no slots (e.g. empty primaries).
	Nodes []Node `json:"nodes,omitempty"`
}

// Snapshot is an immutable view of the cluster: slot ownership plus the set
// of known nodes. A Snapshot is never modified after construction; refreshes
// install a new one.
type Snapshot struct {
	epoch uint64

	layout    Layout
	owners    []int32 // slot -> index into primaries, -1 if unassigned
	nodes     map[string]Node
	primaries []Node
	replicas  []Node
	// replicasOf maps a primary address to its replicas.
	replicasOf map[string][]Node
}

// NewSnapshot validates layout and builds a Snapshot from it.
func NewSnapshot(layout Layout) (*Snapshot, error) {
	s := &Snapshot{
		owners:     make([]int32, NumSlots),
		nodes:      make(map[string]Node),
		replicasOf: make(map[string][]Node),
	}
	for i := range s.owners {
		s.owners[i] = -1
	}

	add := func(n Node) error {
		if n.Addr == "" {
			return fmt.Errorf("%w: empty node address", ErrInvalidLayout)
		}
		if prev, ok := s.nodes[n.Addr]; ok {
			if prev.Role != n.Role {
				return fmt.Errorf("%w: node %s is both %s and %s", ErrInvalidLayout, n.Addr, prev.Role, n.Role)
			}
			return nil
		}
		s.nodes[n.Addr] = n
		return nil
	}

	for _, r := range layout.Ranges {
		if r.Start < 0 || r.End >= NumSlots || r.Start > r.End {
			return nil, fmt.Errorf("%w: slot range %d-%d out of bounds", ErrInvalidLayout, r.Start, r.End)
		}
		if err := add(Node{Addr: r.Primary, Role: RolePrimary}); err != nil {
			return nil, err
		}
		for _, addr := range r.Replicas {
			if err := add(Node{Addr: addr, Role: RoleReplica}); err != nil {
				return nil, err
			}
		}
	}
	for _, n := range layout.Nodes {
		if err := add(n); err != nil {
			return nil, err
		}
	}

	for _, n := range s.nodes {
		if n.IsPrimary() {
			s.primaries = append(s.primaries, n)
		} else {
			s.replicas = append(s.replicas, n)
		}
	}
	slices.SortFunc(s.primaries, compareNodes)
	slices.SortFunc(s.replicas, compareNodes)

	index := make(map[string]int32, len(s.primaries))
	for i, p := range s.primaries {
		index[p.Addr] = int32(i)
	}

	for _, r := range layout.Ranges {
		owner := index[r.Primary]
		for slot := r.Start; slot <= r.End; slot++ {
			if s.owners[slot] != -1 {
				return nil, fmt.Errorf("%w: slot %d assigned twice", ErrInvalidLayout, slot)
			}
			s.owners[slot] = owner
		}
		for _, addr := range r.Replicas {
			if !slices.ContainsFunc(s.replicasOf[r.Primary], func(n Node) bool { return n.Addr == addr }) {
				s.replicasOf[r.Primary] = append(s.replicasOf[r.Primary], s.nodes[addr])
			}
		}
	}
	for _, rs := range s.replicasOf {
		slices.SortFunc(rs, compareNodes)
	}

	s.layout = cloneLayout(layout)
	return s, nil
}

// MustSnapshot is like NewSnapshot but panics on an invalid layout.
func MustSnapshot(layout Layout) *Snapshot {
	s, err := NewSnapshot(layout)
	if err != nil {
		panic(err)
	}
	return s
}

// Epoch is the install sequence number assigned by the [Map]; 0 for
// snapshots that were never installed.
func (s *Snapshot) Epoch() uint64 { return s.epoch }

// Layout returns a copy of the layout the snapshot was built from.
func (s *Snapshot) Layout() Layout { return cloneLayout(s.layout) }

// Node looks up a known node by address.
func (s *Snapshot) Node(addr string) (Node, bool) {
	n, ok := s.nodes[addr]
	return n, ok
}

// Len returns the number of known nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Primaries returns all primaries, sorted by address.
func (s *Snapshot) Primaries() []Node { return slices.Clone(s.primaries) }

// Replicas returns all replicas, sorted by address.
func (s *Snapshot) Replicas() []Node { return slices.Clone(s.replicas) }

// Nodes returns every known node, sorted by address.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	out = append(out, s.primaries...)
	out = append(out, s.replicas...)
	slices.SortFunc(out, compareNodes)
	return out
}

// SlotOwner returns the primary owning slot.
func (s *Snapshot) SlotOwner(slot int) (Node, bool) {
	if slot < 0 || slot >= NumSlots {
		return Node{}, false
	}
	i := s.owners[slot]
	if i < 0 {
		return Node{}, false
	}
	return s.primaries[i], true
}

// SlotReplicas returns the replicas of the primary owning slot.
func (s *Snapshot) SlotReplicas(slot int) []Node {
	owner, ok := s.SlotOwner(slot)
	if !ok {
		return nil
	}
	return slices.Clone(s.replicasOf[owner.Addr])
}

// withEpoch returns a shallow copy stamped with epoch. The copy shares the
// read-only internals of s.
func (s *Snapshot) withEpoch(epoch uint64) *Snapshot {
	c := *s
	c.epoch = epoch
	return &c
}

func compareNodes(a, b Node) int { return strings.Compare(a.Addr, b.Addr) }

func cloneLayout(l Layout) Layout {
	out := Layout{
		Ranges: make([]SlotRange, len(l.Ranges)),
		Nodes:  slices.Clone(l.Nodes),
	}
	for i, r := range l.Ranges {
		r.Replicas = slices.Clone(r.Replicas)
		out.Ranges[i] = r
	}
	return out
}
