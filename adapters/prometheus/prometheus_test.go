package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

func TestNewClusterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClusterMetrics(reg)

	require.NotNil(t, m)

	timer := m.CommandDuration("slot_key")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.CommandCompleted("slot_key", "ok")
	m.CommandCompleted("all_primaries", "partial failure")
	m.NodeOutcome("value")
	m.Redirect("MOVED")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["clstr_route_command_duration_seconds"])
	assert.True(t, names["clstr_route_commands_total"])
	assert.True(t, names["clstr_route_node_outcomes_total"])
	assert.True(t, names["clstr_route_redirects_total"])
}

func TestNewTopologyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTopologyMetrics(reg).(*topologyMetrics)

	m.RefreshDuration().ObserveDuration()
	m.RefreshCompleted(true)
	m.RefreshCompleted(false)
	m.SnapshotInstalled(7, 6)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshesTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshesTotal.WithLabelValues("false")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.epoch))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.nodes))
}

func TestAllMetrics_client(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllMetrics(reg)

	mc := cluster.CreateMemoryCluster(t, 3, 0)
	tm, err := topology.NewMap(topology.MapOptions{
		Query:   mc,
		Seeds:   mc.Primaries()[:1],
		Metrics: m.Topology,
	})
	require.NoError(t, err)
	c := cluster.CreateTestClient(t, mc, cluster.ClientOptions{Topology: tm, Metrics: m.Cluster})

	_, err = c.Execute(t.Context(), cluster.NewCommand("PING"))
	require.NoError(t, err)

	// non-owners redirect to the owner
	_, err = c.Execute(t.Context(), cluster.NewCommand("GET", "foo"))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cluster.commandsTotal.WithLabelValues("all_primaries", "ok")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Cluster.nodeOutcomes.WithLabelValues("value")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cluster.nodeOutcomes.WithLabelValues("redirect")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cluster.redirectsTotal.WithLabelValues("MOVED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Topology.refreshesTotal.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Topology.epoch))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Topology.nodes))
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
