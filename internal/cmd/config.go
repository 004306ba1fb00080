package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torrpeddo/torrpeddo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify Torrpeddo configuration",
	Long: `View or modify Torrpeddo configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  torrpeddo config set worker.python /usr/bin/python3.12
  torrpeddo config set gateway.addr 127.0.0.1:9000
  torrpeddo config set logging.level debug

The new value is validated together with the rest of the configuration
before anything is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/torrpeddo/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}
	printConfig(out, cfg)
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "worker:")
	fmt.Fprintf(out, "  mode: %s\n", cfg.Worker.Mode)
	fmt.Fprintf(out, "  python: %s\n", cfg.Worker.Python)
	fmt.Fprintf(out, "  app_root: %s\n", cfg.Worker.AppRoot)
	fmt.Fprintf(out, "  script: %s\n", cfg.Worker.Script)
	fmt.Fprintf(out, "  resources_dir: %s\n", cfg.Worker.ResourcesDir)
	fmt.Fprintf(out, "  stop_timeout_ms: %d\n", cfg.Worker.StopTimeoutMs)
	fmt.Fprintf(out, "  max_record_bytes: %d\n", cfg.Worker.MaxRecordBytes)
	fmt.Fprintf(out, "  auto_start: %v\n", cfg.Worker.AutoStart)

	fmt.Fprintln(out, "gateway:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Gateway.Enabled)
	fmt.Fprintf(out, "  addr: %s\n", cfg.Gateway.Addr)
	fmt.Fprintf(out, "  static_dir: %s\n", cfg.Gateway.StaticDir)
	fmt.Fprintf(out, "  allowed_origins: [%s]\n", strings.Join(cfg.Gateway.AllowedOrigins, ", "))
	fmt.Fprintf(out, "  send_queue: %d\n", cfg.Gateway.SendQueue)

	fmt.Fprintln(out, "console:")
	fmt.Fprintf(out, "  max_lines: %d\n", cfg.Console.MaxLines)

	fmt.Fprintln(out, "dialog:")
	fmt.Fprintf(out, "  backend: %s\n", cfg.Dialog.Backend)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  file: %s\n", cfg.Logging.File)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	fmt.Fprintln(out, "metrics:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Metrics.Enabled)
}

// settableKeys maps each key accepted by `config set` to its value type.
var settableKeys = map[string]string{
	"worker.mode":             "string",
	"worker.python":           "string",
	"worker.app_root":         "string",
	"worker.script":           "string",
	"worker.resources_dir":    "string",
	"worker.stop_timeout_ms":  "int",
	"worker.max_record_bytes": "int",
	"worker.auto_start":       "bool",
	"gateway.enabled":         "bool",
	"gateway.addr":            "string",
	"gateway.static_dir":      "string",
	"gateway.send_queue":      "int",
	"console.max_lines":       "int",
	"dialog.backend":          "string",
	"logging.level":           "string",
	"logging.file":            "string",
	"logging.max_size_mb":     "int",
	"logging.max_backups":     "int",
	"logging.compress":        "bool",
	"metrics.enabled":         "bool",
}

func parseConfigValue(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'torrpeddo config set --help' to see examples", key)
	}

	switch keyType {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# Torrpeddo Configuration

# Backend worker
worker:
  # auto, source or packaged. auto uses source mode when TORRPEDDO_DEV is set.
  mode: auto
  # Interpreter for source mode
  python: python3
  # Application directory (default: directory of the torrpeddo executable)
  app_root: ""
  # Worker entrypoint relative to app_root (source mode)
  script: backend/bridge.py
  # Directory holding bin/bridge in packaged mode (default: <app_root>/resources)
  resources_dir: ""
  # Grace period after closing the worker's stdin before it is killed
  stop_timeout_ms: 2000
  # Longest single message accepted from the worker
  max_record_bytes: 4194304
  # Start the worker as soon as the host runs
  auto_start: true

# Local HTTP/websocket server the renderer connects to
gateway:
  enabled: true
  # Must be a loopback address
  addr: 127.0.0.1:7878
  static_dir: renderer
  allowed_origins: []
  send_queue: 256

# Terminal UI (torrpeddo console)
console:
  max_lines: 500

# Native pickers: auto, zenity, kdialog, osascript or powershell
dialog:
  backend: auto

logging:
  # debug, info, warn or error
  level: info
  # Empty for the default location, "-" for stderr
  file: ""
  max_size_mb: 10
  max_backups: 3
  compress: false

# Expose /metrics on the gateway
metrics:
  enabled: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'torrpeddo config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: TORRPEDDO_* (e.g., TORRPEDDO_WORKER_PYTHON)")
	return nil
}
