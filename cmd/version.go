package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the semantic version of this build.
const Version = "0.3.0"

func getCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "show application version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conwatch v%s\n", Version)
		},
	}
}
