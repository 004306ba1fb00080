package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/torrpeddo/torrpeddo/internal/config"
	"github.com/torrpeddo/torrpeddo/internal/shell"
	"github.com/torrpeddo/torrpeddo/internal/tui/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the host with a terminal UI",
	Long: `Run the host in-process with a terminal UI in place of the renderer.

The console uses the same channels as the renderer: commands typed at the
prompt go to the worker on to-worker, and ctrl+o / ctrl+d open the native
.torrent file and directory pickers. ctrl+r restarts the worker.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("console needs a terminal; use 'torrpeddo run' instead")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The terminal belongs to the UI, so logs always go to a file.
	if cfg.Logging.File == "-" {
		cfg.Logging.File = ""
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	host, err := shell.New(cfg, shell.WithLogger(logger), shell.WithoutGateway())
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	watchConfig(logger, host.ApplyConfig)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model, err := console.New(ctx, host.Boundary(),
		console.WithMaxLines(cfg.Console.MaxLines),
		console.WithRestart(host.RestartWorker))
	if err != nil {
		return err
	}
	defer model.Close()

	hostDone := make(chan error, 1)
	go func() { hostDone <- host.Run(ctx) }()

	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	interrupted := ctx.Err() != nil
	cancel()
	if err := <-hostDone; err != nil {
		return err
	}
	if runErr != nil && !interrupted {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}
