package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/codewandler/clstr-route/adapters/nats"
	promadapter "github.com/codewandler/clstr-route/adapters/prometheus"
	"github.com/codewandler/clstr-route/adapters/redis"
	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

// backend is a cluster client plus whatever it needs closed.
type backend struct {
	client *cluster.Client
	close  func() error
}

func openBackend(log *slog.Logger, m *promadapter.AllMetrics) (*backend, error) {
	mopts := topology.MapOptions{Log: log}
	copts := cluster.ClientOptions{
		MaxRedirects:   viper.GetInt("max-redirects"),
		NodeTimeout:    viper.GetDuration("node-timeout"),
		MaxConcurrency: viper.GetInt("max-concurrency"),
		Log:            log,
	}
	if copts.MaxRedirects == 0 {
		copts.MaxRedirects = -1
	}
	if m != nil {
		mopts.Metrics = m.Topology
		copts.Metrics = m.Cluster
	}

	switch b := viper.GetString("backend"); b {
	case "redis":
		return openRedis(mopts, copts, log)
	case "nats":
		return openNATS(mopts, copts, log)
	case "memory":
		return openMemory(mopts, copts, log)
	default:
		return nil, fmt.Errorf("unknown backend %q", b)
	}
}

func openRedis(mopts topology.MapOptions, copts cluster.ClientOptions, log *slog.Logger) (*backend, error) {
	cfg := redis.Config{Log: log}
	mopts.Seeds = splitList(viper.GetString("seeds"))
	if u := viper.GetString("url"); u != "" {
		seed, ucfg, err := redis.ParseURL(u)
		if err != nil {
			return nil, err
		}
		ucfg.Log = log
		cfg = ucfg
		mopts.Seeds = append([]string{seed}, mopts.Seeds...)
	}

	c, conn, err := redis.NewClusterClient(cfg, mopts, copts)
	if err != nil {
		return nil, err
	}
	return &backend{client: c, close: conn.Close}, nil
}

func openNATS(mopts topology.MapOptions, copts cluster.ClientOptions, log *slog.Logger) (*backend, error) {
	conn, err := nats.NewConn(nats.Config{
		Connect:       natsConnector(),
		Log:           log,
		SubjectPrefix: viper.GetString("subject-prefix"),
	})
	if err != nil {
		return nil, err
	}

	mopts.Query = conn
	mopts.Seeds = splitList(viper.GetString("seeds"))
	tm, err := topology.NewMap(mopts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	copts.Conn = conn
	copts.Topology = tm
	c, err := cluster.NewClient(copts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &backend{client: c, close: conn.Close}, nil
}

func openMemory(mopts topology.MapOptions, copts cluster.ClientOptions, log *slog.Logger) (*backend, error) {
	mc, err := newMemoryCluster(log)
	if err != nil {
		return nil, err
	}

	mopts.Query = mc
	mopts.Initial = mc.Snapshot()
	tm, err := topology.NewMap(mopts)
	if err != nil {
		return nil, err
	}
	copts.Conn = mc
	copts.Topology = tm
	c, err := cluster.NewClient(copts)
	if err != nil {
		return nil, err
	}
	return &backend{client: c, close: mc.Close}, nil
}

func newMemoryCluster(log *slog.Logger) (*cluster.MemoryCluster, error) {
	n := viper.GetInt("primaries")
	if n < 1 {
		return nil, fmt.Errorf("--primaries must be at least 1, got %d", n)
	}
	if r := viper.GetInt("replicas"); r < 0 {
		return nil, fmt.Errorf("--replicas must not be negative, got %d", r)
	}
	primaries := make([]string, n)
	for i := range n {
		primaries[i] = topology.Addr("127.0.0.1", 7000+i*10)
	}
	return cluster.NewMemoryCluster(cluster.MemoryClusterOptions{
		Primaries:          primaries,
		ReplicasPerPrimary: viper.GetInt("replicas"),
		Seed:               "routectl",
	}).WithLog(log), nil
}

func natsConnector() nats.Connector {
	if u := viper.GetString("nats-url"); u != "" {
		return nats.ConnectURL(u)
	}
	return nats.ConnectDefault()
}

func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := viper.GetDuration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
