package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torrpeddo/torrpeddo/internal/config"
	"github.com/torrpeddo/torrpeddo/internal/shell"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the host and serve the UI",
	Long: `Start the host: spawn the worker, serve the renderer and its websocket
on the gateway address, and relay messages until interrupted.

The worker is stopped on every exit path, including SIGINT and SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("addr", "", "gateway listen address (overrides gateway.addr)")
	runCmd.Flags().String("mode", "", "worker deployment mode: auto, source or packaged")
	_ = viper.BindPFlag("gateway.addr", runCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("worker.mode", runCmd.Flags().Lookup("mode"))
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	out := cmd.OutOrStdout()
	host, err := shell.New(cfg,
		shell.WithLogger(logger),
		shell.WithReadyHandler(func(url string) {
			fmt.Fprintf(out, "Serving UI on %s\n", url)
		}))
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	watchConfig(logger, host.ApplyConfig)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("host starting", "mode", host.Mode().String(), "version", Version)
	return host.Run(ctx)
}
