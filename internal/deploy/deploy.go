// Package deploy decides how the backend worker is launched.
//
// A host runs in one of two deployment modes, fixed at startup. In source
// mode the worker is a script run by an interpreter with unbuffered output;
// in packaged mode it is a standalone binary shipped under the resources
// directory. Resolve maps a mode, a target OS and a directory layout to the
// exact command to spawn and has no side effects, so it can be tested for
// every platform from any platform.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DevEnvVar switches an "auto" host into source mode when set to a true
// value.
const DevEnvVar = "TORRPEDDO_DEV"

// Mode is the deployment mode.
type Mode int

const (
	// ModeSource runs the worker script through an interpreter.
	ModeSource Mode = iota + 1
	// ModePackaged runs the bundled worker binary.
	ModePackaged
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSource:
		return "source"
	case ModePackaged:
		return "packaged"
	default:
		return "unknown"
	}
}

// ParseMode parses "source" or "packaged".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source":
		return ModeSource, nil
	case "packaged":
		return ModePackaged, nil
	default:
		return 0, fmt.Errorf("unknown deployment mode %q", s)
	}
}

// Detect resolves the configured mode setting. "auto" (or empty) consults
// DevEnvVar through lookup; anything else must parse with ParseMode.
func Detect(setting string, lookup func(string) (string, bool)) (Mode, error) {
	if setting != "" && setting != "auto" {
		return ParseMode(setting)
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(DevEnvVar); ok {
		if dev, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && dev {
			return ModeSource, nil
		}
	}
	return ModePackaged, nil
}

// Layout describes where the worker lives on disk.
type Layout struct {
	// AppRoot is the application directory. In source mode the worker runs
	// with AppRoot as its working directory.
	AppRoot string
	// Script is the worker entrypoint, relative to AppRoot unless absolute.
	Script string
	// Python is the interpreter used in source mode.
	Python string
	// ResourcesDir holds bin/bridge[.exe]; empty means <AppRoot>/resources.
	ResourcesDir string
}

// Command is a fully resolved worker invocation.
type Command struct {
	Mode   Mode
	Path   string
	Args   []string
	Dir    string
	Env    []string // extra environment, appended to the host's
	Script string   // source mode entrypoint, also present in Args
}

// String renders the command line for logs and `torrpeddo resolve`.
func (c Command) String() string {
	parts := append([]string{c.Path}, c.Args...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t\"") {
			parts[i] = strconv.Quote(p)
		}
	}
	return strings.Join(parts, " ")
}

// BinaryName returns the packaged worker's file name on goos.
func BinaryName(goos string) string {
	if goos == "windows" {
		return "bridge.exe"
	}
	return "bridge"
}

// Resolve returns the command that starts the worker for mode on goos.
func Resolve(mode Mode, goos string, layout Layout) (Command, error) {
	if layout.AppRoot == "" {
		return Command{}, fmt.Errorf("app root is required")
	}

	switch mode {
	case ModeSource:
		if layout.Python == "" {
			return Command{}, fmt.Errorf("interpreter is required in source mode")
		}
		script := layout.Script
		if !filepath.IsAbs(script) {
			script = filepath.Join(layout.AppRoot, script)
		}
		return Command{
			Mode:   ModeSource,
			Path:   layout.Python,
			Args:   []string{"-u", script},
			Dir:    layout.AppRoot,
			Env:    []string{"PYTHONUNBUFFERED=1"},
			Script: script,
		}, nil

	case ModePackaged:
		resources := layout.ResourcesDir
		if resources == "" {
			resources = filepath.Join(layout.AppRoot, "resources")
		}
		return Command{
			Mode: ModePackaged,
			Path: filepath.Join(resources, "bin", BinaryName(goos)),
			Dir:  layout.AppRoot,
		}, nil

	default:
		return Command{}, fmt.Errorf("unknown deployment mode %d", int(mode))
	}
}

// DefaultAppRoot returns the directory holding the running executable, or
// the working directory if that cannot be determined.
func DefaultAppRoot() string {
	exe, err := os.Executable()
	if err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
