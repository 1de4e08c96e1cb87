package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/codewandler/clstr-route/adapters/prometheus"
	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/route"
)

var benchCmd = &cobra.Command{
	Use:   "bench [flags] [--] COMMAND [ARG...]",
	Short: "Run a command repeatedly and report throughput",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := route.Parse(viper.GetString("route"))
		if err != nil {
			return err
		}
		log, err := newLogger()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		m := promadapter.NewAllMetrics(reg)
		if addr := viper.GetString("metrics-addr"); addr != "" {
			stop := serveMetrics(log, addr, reg)
			defer stop()
		}

		b, err := openBackend(log, m)
		if err != nil {
			return err
		}
		defer func() { _ = b.close() }()

		stats, err := runBench(cmd.Context(), b.client, cluster.NewCommand(args...), d,
			viper.GetInt("requests"), viper.GetInt("concurrency"))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, stats)
		return nil
	},
}

func init() {
	f := benchCmd.Flags()
	f.String("route", "all-primaries", "route directive, see routectl --help")
	f.Int("requests", 10_000, "number of commands to run")
	f.Int("concurrency", 16, "commands in flight")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :2121")
}

type benchStats struct {
	requests int
	failed   int64
	took     time.Duration
}

func (s benchStats) String() string {
	return fmt.Sprintf(
		"%d commands, %d failed, %.3fs, %d commands/s",
		s.requests, s.failed, s.took.Seconds(), int(float64(s.requests)/s.took.Seconds()),
	)
}

func runBench(ctx context.Context, c *cluster.Client, cmd cluster.Command, d route.Directive, n, concurrency int) (benchStats, error) {
	if n <= 0 || concurrency <= 0 {
		return benchStats{}, errors.New("requests and concurrency must be positive")
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for range n {
		g.Go(func() error {
			cctx, cancel := commandContext(gctx)
			defer cancel()
			if _, err := c.ExecuteRouted(cctx, cmd, d); err != nil {
				failed.Add(1)
			}
			return gctx.Err()
		})
	}
	err := g.Wait()
	return benchStats{requests: n, failed: failed.Load(), took: time.Since(start)}, err
}

func serveMetrics(log *slog.Logger, addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("prometheus metrics server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("prometheus server error", slog.Any("error", err))
		}
	}()
	return func() { _ = srv.Shutdown(context.Background()) }
}
