package dialog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gobwas/glob"

	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/logging"
)

// Backend names a native dialog tool.
type Backend string

const (
	BackendAuto       Backend = "auto"
	BackendZenity     Backend = "zenity"
	BackendKDialog    Backend = "kdialog"
	BackendOSAScript  Backend = "osascript"
	BackendPowerShell Backend = "powershell"
	backendNone       Backend = ""
)

const (
	directoryTitle = "Select download directory"
	fileTitle      = "Select torrent file"
)

// Runner executes a dialog tool and returns its stdout and exit code.
type Runner func(ctx context.Context, name string, args ...string) (stdout []byte, exitCode int, err error)

// execRunner runs the tool with os/exec. A non-zero exit is not an error;
// every tool here uses exit status 1 for "dialog dismissed".
func execRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), 0, nil
}

// NativePicker shells out to the platform's dialog tool.
type NativePicker struct {
	backend Backend
	run     Runner
	logger  *logging.Logger
}

// NativeOption configures a NativePicker.
type NativeOption func(*nativeConfig)

type nativeConfig struct {
	run      Runner
	logger   *logging.Logger
	goos     string
	lookPath func(string) (string, error)
}

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r Runner) NativeOption {
	return func(c *nativeConfig) {
		c.run = r
	}
}

// WithLogger sets the picker's logger.
func WithLogger(logger *logging.Logger) NativeOption {
	return func(c *nativeConfig) {
		c.logger = logger
	}
}

// WithPlatform overrides backend detection inputs.
func WithPlatform(goos string, lookPath func(string) (string, error)) NativeOption {
	return func(c *nativeConfig) {
		c.goos = goos
		c.lookPath = lookPath
	}
}

// NewNativePicker creates a picker for backend. "auto" picks osascript on
// macOS, powershell on Windows and zenity or kdialog elsewhere, whichever is
// installed.
func NewNativePicker(backend string, opts ...NativeOption) *NativePicker {
	cfg := &nativeConfig{
		run:      execRunner,
		logger:   logging.NopLogger(),
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	p := &NativePicker{
		backend: Backend(backend),
		run:     cfg.run,
		logger:  cfg.logger.WithComponent("dialog"),
	}
	if p.backend == BackendAuto || p.backend == "" {
		p.backend = detect(cfg.goos, cfg.lookPath)
	}
	p.logger.Debug("dialog backend selected", "backend", string(p.backend))
	return p
}

func detect(goos string, lookPath func(string) (string, error)) Backend {
	switch goos {
	case "darwin":
		return BackendOSAScript
	case "windows":
		return BackendPowerShell
	}
	for _, b := range []Backend{BackendZenity, BackendKDialog} {
		if _, err := lookPath(string(b)); err == nil {
			return b
		}
	}
	return backendNone
}

// Backend returns the selected backend, empty when none is available.
func (p *NativePicker) Backend() Backend {
	return p.backend
}

// SelectDirectory implements Picker.
func (p *NativePicker) SelectDirectory(ctx context.Context) Result {
	name, args, ok := p.directoryCommand()
	if !ok {
		p.logger.Warn("no dialog backend available")
		return Cancelled()
	}

	path, ok := p.pick(ctx, name, args)
	if !ok {
		return Cancelled()
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		p.logger.Warn("picker returned a non-directory", "path", path, "error", err)
		return Cancelled()
	}
	return Selected(path)
}

// SelectFile implements Picker.
func (p *NativePicker) SelectFile(ctx context.Context, ext string) Result {
	match, err := extensionMatcher(ext)
	if err != nil {
		p.logger.Error("invalid extension filter", "ext", ext, "error", err)
		return Cancelled()
	}

	name, args, ok := p.fileCommand(ext)
	if !ok {
		p.logger.Warn("no dialog backend available")
		return Cancelled()
	}

	path, ok := p.pick(ctx, name, args)
	if !ok {
		return Cancelled()
	}
	if !match.Match(strings.ToLower(path)) {
		p.logger.Warn("picker returned a file outside the filter", "path", path, "ext", ext)
		return Cancelled()
	}
	return Selected(path)
}

// pick runs the tool and returns the chosen path. ok is false when the user
// dismissed the dialog or the tool failed.
func (p *NativePicker) pick(ctx context.Context, name string, args []string) (string, bool) {
	out, code, err := p.run(ctx, name, args...)
	if err != nil {
		p.logger.Error("dialog failed", "backend", string(p.backend), "error", err)
		return "", false
	}
	if code != 0 {
		p.logger.Debug("dialog dismissed", "backend", string(p.backend), "exit_code", code)
		return "", false
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", false
	}
	return path, true
}

// extensionMatcher matches lowercase paths ending in ext.
func extensionMatcher(ext string) (glob.Glob, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return glob.Compile("*")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return glob.Compile("*" + glob.QuoteMeta(ext))
}

func (p *NativePicker) directoryCommand() (string, []string, bool) {
	switch p.backend {
	case BackendZenity:
		return "zenity", []string{"--file-selection", "--directory", "--title=" + directoryTitle}, true
	case BackendKDialog:
		return "kdialog", []string{"--title", directoryTitle, "--getexistingdirectory", homeDir()}, true
	case BackendOSAScript:
		return "osascript", []string{"-e",
			fmt.Sprintf(`POSIX path of (choose folder with prompt %q)`, directoryTitle)}, true
	case BackendPowerShell:
		return "powershell", powershellArgs(`Add-Type -AssemblyName System.Windows.Forms
$d = New-Object System.Windows.Forms.FolderBrowserDialog
$d.Description = '` + directoryTitle + `'
if ($d.ShowDialog() -eq 'OK') { [Console]::Out.Write($d.SelectedPath) } else { exit 1 }`), true
	default:
		return "", nil, false
	}
}

func (p *NativePicker) fileCommand(ext string) (string, []string, bool) {
	bare := strings.TrimPrefix(strings.ToLower(ext), ".")
	switch p.backend {
	case BackendZenity:
		return "zenity", []string{"--file-selection", "--title=" + fileTitle,
			fmt.Sprintf("--file-filter=%s files | *.%s", bare, bare)}, true
	case BackendKDialog:
		return "kdialog", []string{"--title", fileTitle, "--getopenfilename", homeDir(),
			fmt.Sprintf("*.%s|%s files", bare, bare)}, true
	case BackendOSAScript:
		return "osascript", []string{"-e",
			fmt.Sprintf(`POSIX path of (choose file with prompt %q of type {%q})`, fileTitle, bare)}, true
	case BackendPowerShell:
		return "powershell", powershellArgs(`Add-Type -AssemblyName System.Windows.Forms
$d = New-Object System.Windows.Forms.OpenFileDialog
$d.Title = '` + fileTitle + `'
$d.Filter = '` + bare + ` files (*.` + bare + `)|*.` + bare + `'
if ($d.ShowDialog() -eq 'OK') { [Console]::Out.Write($d.FileName) } else { exit 1 }`), true
	default:
		return "", nil, false
	}
}

func powershellArgs(script string) []string {
	return []string{"-NoProfile", "-NonInteractive", "-STA", "-Command", script}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
