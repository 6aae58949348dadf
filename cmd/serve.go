package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conwatch/conwatch/internal/aggregator"
	"github.com/conwatch/conwatch/internal/bridge"
)

const shutdownTimeout = 5 * time.Second

// getCmdServe hosts the aggregator as a bridge endpoint for the duration of
// a test run: statistics are reset on startup and the summary is printed on
// shutdown.
func getCmdServe(c *rootCommand) *cobra.Command {
	var (
		configFile string
		addr       string
		logDir     string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "host the aggregator bridge endpoint for a test run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := afero.NewOsFs()
			cfg, err := loadServeConfig(fs, configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir = logDir
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debug
			}

			agg := aggregator.New(fs, cfg.LogDir, c.logger)
			agg.SetDebugMode(cfg.Debug)

			srv := bridge.NewServer(c.logger)
			agg.Register(srv)
			agg.HandleRunStart()

			mux := http.NewServeMux()
			mux.Handle(bridge.DefaultEndpointPath, srv)
			httpSrv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			c.logger.WithField("addr", cfg.Addr).Info("conwatch aggregator listening")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("bridge endpoint: %w", err)
				}
			case <-sigCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				c.logger.WithError(err).Debug("shutting down bridge endpoint")
			}

			agg.HandleRunEnd(cmd.OutOrStdout())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a conwatch.yaml config file")
	flags.StringVar(&addr, "addr", defaultBridgeAddr, "bridge listen address")
	flags.StringVar(&logDir, "log-dir", aggregator.DefaultLogDir, "directory for per-test log files")
	flags.BoolVar(&debug, "debug", false, "print recorded details in the run summary")
	return cmd
}
