package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codewandler/clstr-route/adapters/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose an in-memory cluster on NATS",
	Long: `serve starts an in-memory cluster (--primaries, --replicas) and answers
commands and layout queries for each of its nodes on NATS, until interrupted.
Use "routectl --backend nats" to talk to it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serveMemory(ctx, log)
	},
}

func serveMemory(ctx context.Context, log *slog.Logger) error {
	mc, err := newMemoryCluster(log)
	if err != nil {
		return err
	}
	defer func() { _ = mc.Close() }()

	connect := nats.ReuseConnection(natsConnector())
	prefix := viper.GetString("subject-prefix")
	for _, n := range mc.Snapshot().Nodes() {
		s, err := nats.NewNodeServer(nats.NodeServerConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: prefix,
			Node:          n,
			Handler:       mc.Send,
			Layout:        mc.QueryLayout,
		})
		if err != nil {
			return fmt.Errorf("serve %s: %w", n.Addr, err)
		}
		defer func() { _ = s.Close() }()
		log.Info("serving node", slog.String("node", n.String()))
	}

	fmt.Printf("serving %d primaries on NATS (prefix %q), seeds: %s\n", len(mc.Primaries()), prefix, mc.Primaries()[0])
	<-ctx.Done()
	return nil
}
