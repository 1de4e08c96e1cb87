package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "routectl",
	Short: "Run routed commands against a slot-partitioned cluster",
	Long: `routectl sends commands to the node(s) of a cluster selected by a route:

  all-primaries          every primary (default)
  all-nodes              every primary and replica
  random                 one random primary
  slot-key:<key>         the primary owning the slot of <key>
  slot-id:<n>            the primary owning slot <n>
  replica-slot-key:<key> a replica serving the slot of <key>
  replica-slot-id:<n>    a replica serving slot <n>
  node:<host:port>       the node at <host:port>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.PersistentFlags()
	f.String("backend", "redis", "cluster backend: redis, nats or memory")
	f.String("seeds", "127.0.0.1:7000", "comma-separated node addresses to bootstrap the topology from")
	f.String("url", "", "redis:// URL of a seed node, carrying credentials (redis backend)")
	f.String("nats-url", "", "NATS server URL (nats backend), defaults to $NATS_URL")
	f.String("subject-prefix", "clstr", "NATS subject prefix (nats backend)")
	f.Int("primaries", 3, "number of primaries (memory backend)")
	f.Int("replicas", 0, "replicas per primary (memory backend)")
	f.Duration("timeout", 10*time.Second, "deadline of a whole command, redirects included")
	f.Duration("node-timeout", 5*time.Second, "deadline of one node request")
	f.Int("max-redirects", 1, "redirect hops to follow, 0 disables following")
	f.Int("max-concurrency", 0, "in-flight node requests per command, 0 means unlimited")
	f.String("log-level", "warn", "log level: debug, info, warn or error")

	rootCmd.AddCommand(execCmd, topologyCmd, benchCmd, serveCmd)
}

func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("routectl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
