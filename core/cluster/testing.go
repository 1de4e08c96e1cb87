package cluster

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-route/core/topology"
)

// CreateMemoryCluster starts an in-memory cluster with primaries at
// 10.0.0.1:7000, 10.0.0.2:7000, ... Replicas of a primary listen on the
// following ports of the same host.
func CreateMemoryCluster(t *testing.T, numPrimaries, replicasPerPrimary int) *MemoryCluster {
	primaries := make([]string, 0, numPrimaries)
	for i := 1; i <= numPrimaries; i++ {
		primaries = append(primaries, fmt.Sprintf("10.0.0.%d:7000", i))
	}
	mc := NewMemoryCluster(MemoryClusterOptions{
		Primaries:          primaries,
		ReplicasPerPrimary: replicasPerPrimary,
		Seed:               "test",
	}).WithLog(slog.Default())
	t.Cleanup(func() {
		require.NoError(t, mc.Close())
	})
	return mc
}

// CreateTestClient creates a client for mc. Conn and Topology default to the
// memory cluster itself, bootstrapped from its first primary.
func CreateTestClient(t *testing.T, mc *MemoryCluster, opts ClientOptions) *Client {
	if opts.Conn == nil {
		opts.Conn = mc
	}
	if opts.Topology == nil {
		tm, err := topology.NewMap(topology.MapOptions{
			Query: mc,
			Seeds: mc.Primaries()[:1],
		})
		require.NoError(t, err)
		opts.Topology = tm
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}
