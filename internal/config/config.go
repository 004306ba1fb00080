package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete Torrpeddo host configuration
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Console ConsoleConfig `mapstructure:"console"`
	Dialog  DialogConfig  `mapstructure:"dialog"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// WorkerConfig controls how the backend worker is located and supervised
type WorkerConfig struct {
	// Mode selects the deployment mode: "auto", "source" or "packaged".
	// "auto" uses source mode when TORRPEDDO_DEV is set, packaged otherwise.
	Mode string `mapstructure:"mode"`
	// Python is the interpreter used in source mode
	Python string `mapstructure:"python"`
	// AppRoot is the application directory holding backend/bridge.py.
	// Empty means the directory containing the host executable.
	AppRoot string `mapstructure:"app_root"`
	// Script is the worker entrypoint relative to AppRoot (source mode)
	Script string `mapstructure:"script"`
	// ResourcesDir holds bin/bridge[.exe] in packaged mode.
	// Empty means <AppRoot>/resources.
	ResourcesDir string `mapstructure:"resources_dir"`
	// StopTimeoutMs is how long Stop waits after closing stdin before killing
	StopTimeoutMs int `mapstructure:"stop_timeout_ms"`
	// MaxRecordBytes bounds a single line read from the worker
	MaxRecordBytes int `mapstructure:"max_record_bytes"`
	// AutoStart starts the worker as soon as the host runs
	AutoStart bool `mapstructure:"auto_start"`
}

// GatewayConfig controls the local HTTP/websocket server the UI connects to
type GatewayConfig struct {
	// Enabled turns the gateway on for `torrpeddo run`
	Enabled bool `mapstructure:"enabled"`
	// Addr is the listen address; must be a loopback address
	Addr string `mapstructure:"addr"`
	// StaticDir is the renderer directory served at /
	StaticDir string `mapstructure:"static_dir"`
	// AllowedOrigins are extra websocket origins besides same-origin and localhost
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// SendQueue is the per-client outbound queue length
	SendQueue int `mapstructure:"send_queue"`
}

// ConsoleConfig controls the terminal UI client
type ConsoleConfig struct {
	// MaxLines limits how many relayed messages the console keeps
	MaxLines int `mapstructure:"max_lines"`
}

// DialogConfig controls the native file/directory pickers
type DialogConfig struct {
	// Backend is "auto", "zenity", "kdialog", "osascript" or "powershell"
	Backend string `mapstructure:"backend"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// File is the log file path. Empty means <DataDir>/torrpeddo.log;
	// "-" logs to stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated (0 disables rotation)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig controls the prometheus endpoint on the gateway
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Mode:           "auto",
			Python:         "python3",
			Script:         filepath.Join("backend", "bridge.py"),
			StopTimeoutMs:  2000,
			MaxRecordBytes: 4 * 1024 * 1024,
			AutoStart:      true,
		},
		Gateway: GatewayConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:7878",
			StaticDir:      "renderer",
			AllowedOrigins: []string{},
			SendQueue:      256,
		},
		Console: ConsoleConfig{
			MaxLines: 500,
		},
		Dialog: DialogConfig{
			Backend: "auto",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// StopTimeout returns the stop grace period as a time.Duration
func (c *WorkerConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// LogFilePath resolves the configured log destination. An empty return
// value means stderr.
func (c *LoggingConfig) LogFilePath() string {
	switch c.File {
	case "-":
		return ""
	case "":
		return filepath.Join(DataDir(), "torrpeddo.log")
	default:
		return c.File
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Worker defaults
	viper.SetDefault("worker.mode", defaults.Worker.Mode)
	viper.SetDefault("worker.python", defaults.Worker.Python)
	viper.SetDefault("worker.app_root", defaults.Worker.AppRoot)
	viper.SetDefault("worker.script", defaults.Worker.Script)
	viper.SetDefault("worker.resources_dir", defaults.Worker.ResourcesDir)
	viper.SetDefault("worker.stop_timeout_ms", defaults.Worker.StopTimeoutMs)
	viper.SetDefault("worker.max_record_bytes", defaults.Worker.MaxRecordBytes)
	viper.SetDefault("worker.auto_start", defaults.Worker.AutoStart)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", defaults.Gateway.Enabled)
	viper.SetDefault("gateway.addr", defaults.Gateway.Addr)
	viper.SetDefault("gateway.static_dir", defaults.Gateway.StaticDir)
	viper.SetDefault("gateway.allowed_origins", defaults.Gateway.AllowedOrigins)
	viper.SetDefault("gateway.send_queue", defaults.Gateway.SendQueue)

	// Console defaults
	viper.SetDefault("console.max_lines", defaults.Console.MaxLines)

	// Dialog defaults
	viper.SetDefault("dialog.backend", defaults.Dialog.Backend)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Watch reloads the configuration whenever the active config file changes
// on disk and hands the result to onChange. A reload that fails validation
// is passed through as the error so the caller can keep its current
// settings. Returns false when no config file is in use.
func Watch(onChange func(*Config, error)) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Load())
	})
	viper.WatchConfig()
	return true
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "torrpeddo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".torrpeddo"
	}
	return filepath.Join(home, ".config", "torrpeddo")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory for host state such as logs
func DataDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "torrpeddo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".torrpeddo"
	}
	return filepath.Join(home, ".local", "state", "torrpeddo")
}

// ValidWorkerModes returns the accepted values of worker.mode
func ValidWorkerModes() []string {
	return []string{"auto", "source", "packaged"}
}

// ValidDialogBackends returns the accepted values of dialog.backend
func ValidDialogBackends() []string {
	return []string{"auto", "zenity", "kdialog", "osascript", "powershell"}
}
