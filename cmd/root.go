// Package cmd implements the conwatch command line interface.
package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCommand holds the state shared by all conwatch subcommands.
type rootCommand struct {
	logger  *logrus.Logger
	cmd     *cobra.Command
	verbose bool
	noColor bool
}

func newRootCommand() *rootCommand {
	c := &rootCommand{logger: logrus.New()}
	c.logger.SetOutput(os.Stderr)

	c.cmd = &cobra.Command{
		Use:               "conwatch",
		Short:             "console watchdog for browser-driven test runs",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}

	flags := c.cmd.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	c.cmd.AddCommand(getCmdServe(c), getCmdStats(c), getCmdVersion())
	return c
}

func (c *rootCommand) persistentPreRunE(*cobra.Command, []string) error {
	if c.verbose {
		c.logger.SetLevel(logrus.DebugLevel)
	}
	if c.noColor {
		color.NoColor = true
	}
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	c := newRootCommand()
	if err := c.cmd.Execute(); err != nil {
		c.logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
