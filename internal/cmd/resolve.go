package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/torrpeddo/torrpeddo/internal/config"
	"github.com/torrpeddo/torrpeddo/internal/deploy"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the worker command the host would run",
	Long: `Print the worker command for a deployment mode and platform without
starting it. Useful for checking a packaged layout or a dev checkout.

Examples:
  torrpeddo resolve
  torrpeddo resolve --mode packaged --os windows`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().String("mode", "", "deployment mode: auto, source or packaged (default from worker.mode)")
	resolveCmd.Flags().String("os", runtime.GOOS, "target operating system")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	setting, _ := cmd.Flags().GetString("mode")
	if setting == "" {
		setting = cfg.Worker.Mode
	}
	goos, _ := cmd.Flags().GetString("os")

	mode, err := deploy.Detect(setting, os.LookupEnv)
	if err != nil {
		return err
	}

	layout := deploy.Layout{
		AppRoot:      cfg.Worker.AppRoot,
		Script:       cfg.Worker.Script,
		Python:       cfg.Worker.Python,
		ResourcesDir: cfg.Worker.ResourcesDir,
	}
	if layout.AppRoot == "" {
		layout.AppRoot = deploy.DefaultAppRoot()
	}

	spec, err := deploy.Resolve(mode, goos, layout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mode:    %s\n", spec.Mode)
	fmt.Fprintf(out, "os:      %s\n", goos)
	fmt.Fprintf(out, "command: %s\n", spec)
	if spec.Dir != "" {
		fmt.Fprintf(out, "dir:     %s\n", spec.Dir)
	}
	for _, env := range spec.Env {
		fmt.Fprintf(out, "env:     %s\n", env)
	}
	return nil
}
