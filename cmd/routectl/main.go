// Command routectl runs routed commands against a cluster.
//
//	routectl exec --route slot-key:user:1 -- GET user:1
//	routectl exec PING
//	routectl topology --seeds 10.0.0.1:7000
//	routectl bench --requests 100000 --concurrency 64 --metrics-addr :2121 -- PING
//	routectl serve --backend memory --nats-url nats://localhost:4222
//
// Every flag can also be set through the environment (ROUTECTL_<FLAG>, with
// dashes as underscores), including from .env and .env.local files.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
