package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codewandler/clstr-route/core/topology"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Query and print the slot layout of the cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		b, err := openBackend(log, nil)
		if err != nil {
			return err
		}
		defer func() { _ = b.close() }()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		snap, err := b.client.Topology().Refresh(ctx)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap.Layout())
		}
		return printLayout(os.Stdout, snap)
	},
}

func init() {
	topologyCmd.Flags().Bool("json", false, "print the layout as JSON")
}

func printLayout(w io.Writer, snap *topology.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOTS\tPRIMARY\tREPLICAS")
	layout := snap.Layout()
	for _, r := range layout.Ranges {
		replicas := strings.Join(r.Replicas, ",")
		if replicas == "" {
			replicas = "-"
		}
		fmt.Fprintf(tw, "%d-%d\t%s\t%s\n", r.Start, r.End, r.Primary, replicas)
	}
	for _, n := range layout.Nodes {
		fmt.Fprintf(tw, "-\t%s\t-\n", n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d primaries, %d replicas\n", len(snap.Primaries()), len(snap.Replicas()))
	return err
}
