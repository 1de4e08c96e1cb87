package redis

import (
	"context"
	"fmt"
	"net"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codewandler/clstr-route/core/topology"
)

// QueryLayout asks node for the slot layout (CLUSTER SLOTS).
func (c *Conn) QueryLayout(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	slots, err := c.client(node.Addr).ClusterSlots(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: cluster slots from %s: %w", node.Addr, err)
	}
	return SnapshotFromSlots(node, slots)
}

// SnapshotFromSlots converts a CLUSTER SLOTS reply received from node. The
// first node of every range is its primary. Nodes announcing no host are
// reached on the host of node.
func SnapshotFromSlots(node topology.Node, slots []goredis.ClusterSlot) (*topology.Snapshot, error) {
	var layout topology.Layout
	for _, s := range slots {
		if len(s.Nodes) == 0 {
			continue
		}
		r := topology.SlotRange{
			Start:   s.Start,
			End:     s.End,
			Primary: announcedAddr(node, s.Nodes[0].Addr),
		}
		for _, n := range s.Nodes[1:] {
			r.Replicas = append(r.Replicas, announcedAddr(node, n.Addr))
		}
		layout.Ranges = append(layout.Ranges, r)
	}
	return topology.NewSnapshot(layout)
}

func announcedAddr(from topology.Node, addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "?" {
		return net.JoinHostPort(from.Host(), port)
	}
	return addr
}
