package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/route"
)

var errCommandFailed = errors.New("command failed")

var execCmd = &cobra.Command{
	Use:   "exec [flags] [--] COMMAND [ARG...]",
	Short: "Run one command on the nodes selected by --route",
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
		b, err := openBackend(log, nil)
		if err != nil {
			return err
		}
		defer func() { _ = b.close() }()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		res, err := b.client.ExecuteRouted(ctx, cluster.NewCommand(args...), d)
		if err != nil {
			printError(os.Stdout, err)
			return errCommandFailed
		}
		printResult(os.Stdout, res)
		return nil
	},
}

func init() {
	execCmd.Flags().String("route", "all-primaries", "route directive, see routectl --help")
}
