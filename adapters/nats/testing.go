package nats

import (
	"context"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codewandler/clstr-route/core/cluster"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Cleanup(func())
}

// NewTestContainer starts a NATS server and returns a Connector for it.
func NewTestContainer(t Testing) Connector {
	ctx := t.Context()
	natsC, err := testcontainers.Run(
		ctx, "nats:latest",
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	ip, err := natsC.ContainerIP(ctx)
	require.NoError(t, err)
	t.Logf("nats ip: %s", ip)
	return ConnectURL("nats://" + ip + ":4222")
}

// ServeMemoryCluster exposes every node of mc on NATS under prefix.
func ServeMemoryCluster(t Testing, connect Connector, mc *cluster.MemoryCluster, prefix string) {
	for _, n := range mc.Snapshot().Nodes() {
		s, err := NewNodeServer(NodeServerConfig{
			Connect:       connect,
			SubjectPrefix: prefix,
			Node:          n,
			Handler:       mc.Send,
			Layout:        mc.QueryLayout,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
	}
}
