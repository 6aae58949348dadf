package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conwatch/conwatch/internal/bridge"
)

// getCmdStats queries a running aggregator endpoint for the current run
// statistics.
func getCmdStats(c *rootCommand) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "query a running aggregator for run statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, err := bridge.Dial(ctx, addr, c.logger)
			if err != nil {
				return err
			}
			defer client.Close() //nolint:errcheck

			var stats bridge.ErrorStats
			if err := client.Call(ctx, bridge.MethodGetErrorStats, nil, &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s, %s\n",
				color.New(color.FgRed).Sprintf("%d error(s)", stats.Errors),
				color.New(color.FgYellow).Sprintf("%d warning(s)", stats.Warnings))
			for _, d := range stats.Details {
				fmt.Fprintf(out, "  - [%s] %s\n", strings.ToUpper(string(d.Type)), d.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultBridgeAddr, "bridge address of the running aggregator")
	return cmd
}
