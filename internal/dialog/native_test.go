package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// scriptedRunner answers dialog invocations with a fixed reply.
type scriptedRunner struct {
	out   string
	code  int
	err   error
	calls [][]string
}

func (r *scriptedRunner) run(_ context.Context, name string, args ...string) ([]byte, int, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return []byte(r.out), r.code, r.err
}

func lookPathFor(installed ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range installed {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		installed []string
		want      Backend
	}{
		{"macos", "darwin", nil, BackendOSAScript},
		{"windows", "windows", nil, BackendPowerShell},
		{"linux zenity", "linux", []string{"zenity", "kdialog"}, BackendZenity},
		{"linux kdialog only", "linux", []string{"kdialog"}, BackendKDialog},
		{"linux nothing", "linux", nil, backendNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewNativePicker("auto", WithPlatform(tt.goos, lookPathFor(tt.installed...)))
			if p.Backend() != tt.want {
				t.Errorf("Backend() = %q, want %q", p.Backend(), tt.want)
			}
		})
	}
}

func TestExplicitBackendSkipsDetection(t *testing.T) {
	p := NewNativePicker("kdialog", WithPlatform("darwin", lookPathFor()))
	if p.Backend() != BackendKDialog {
		t.Errorf("Backend() = %q, want kdialog", p.Backend())
	}
}

func TestSelectDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		runner *scriptedRunner
		want   Result
	}{
		{"selected", &scriptedRunner{out: dir + "\n"}, Result{Path: dir}},
		{"dismissed", &scriptedRunner{code: 1}, Cancelled()},
		{"tool failed", &scriptedRunner{err: errors.New("no display")}, Cancelled()},
		{"empty output", &scriptedRunner{out: "  \n"}, Cancelled()},
		{"not a directory", &scriptedRunner{out: file}, Cancelled()},
		{"missing directory", &scriptedRunner{out: filepath.Join(dir, "gone")}, Cancelled()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewNativePicker("zenity", WithRunner(tt.runner.run))
			got := p.SelectDirectory(context.Background())
			if got != tt.want {
				t.Errorf("SelectDirectory() = %+v, want %+v", got, tt.want)
			}
			if len(tt.runner.calls) != 1 || tt.runner.calls[0][0] != "zenity" {
				t.Errorf("calls = %v", tt.runner.calls)
			}
		})
	}
}

func TestSelectFile(t *testing.T) {
	tests := []struct {
		name   string
		runner *scriptedRunner
		want   Result
	}{
		{"torrent", &scriptedRunner{out: "/home/u/ubuntu.torrent\n"}, Result{Path: "/home/u/ubuntu.torrent"}},
		{"uppercase extension", &scriptedRunner{out: "/home/u/UBUNTU.TORRENT"}, Result{Path: "/home/u/UBUNTU.TORRENT"}},
		{"wrong extension", &scriptedRunner{out: "/home/u/notes.txt"}, Cancelled()},
		{"suffix lookalike", &scriptedRunner{out: "/home/u/file.torrent.exe"}, Cancelled()},
		{"dismissed", &scriptedRunner{code: 1}, Cancelled()},
		{"tool failed", &scriptedRunner{err: errors.New("boom")}, Cancelled()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewNativePicker("kdialog", WithRunner(tt.runner.run))
			got := p.SelectFile(context.Background(), ".torrent")
			if got != tt.want {
				t.Errorf("SelectFile() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelectFile_FilterArguments(t *testing.T) {
	backends := []Backend{BackendZenity, BackendKDialog, BackendOSAScript, BackendPowerShell}
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			r := &scriptedRunner{code: 1}
			p := NewNativePicker(string(b), WithRunner(r.run))
			p.SelectFile(context.Background(), ".torrent")

			if len(r.calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(r.calls))
			}
			if r.calls[0][0] != string(b) {
				t.Errorf("ran %q, want %q", r.calls[0][0], b)
			}
			if !strings.Contains(strings.Join(r.calls[0], " "), "torrent") {
				t.Errorf("no torrent filter in %q", r.calls[0])
			}
		})
	}
}

func TestNoBackend(t *testing.T) {
	r := &scriptedRunner{out: "/should/not/run"}
	p := NewNativePicker("auto", WithRunner(r.run), WithPlatform("linux", lookPathFor()))

	if got := p.SelectDirectory(context.Background()); got != Cancelled() {
		t.Errorf("SelectDirectory() = %+v", got)
	}
	if got := p.SelectFile(context.Background(), ".torrent"); got != Cancelled() {
		t.Errorf("SelectFile() = %+v", got)
	}
	if len(r.calls) != 0 {
		t.Errorf("runner called without a backend: %v", r.calls)
	}
}

func TestResultJSON(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{Cancelled(), `{"cancelled":true}`},
		{Result{Path: "/data/x.torrent"}, `{"cancelled":false,"path":"/data/x.torrent"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.result)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal(%+v) = %s, want %s", tt.result, b, tt.want)
		}
	}
}

func TestSelected(t *testing.T) {
	if got := Selected(""); got != Cancelled() {
		t.Errorf("Selected(\"\") = %+v", got)
	}
	got := Selected("rel/x.torrent")
	if got.Cancelled || !filepath.IsAbs(got.Path) {
		t.Errorf("Selected(rel) = %+v, want absolute path", got)
	}
}

func TestExtensionMatcher(t *testing.T) {
	tests := []struct {
		ext, path string
		want      bool
	}{
		{".torrent", "/a/b.torrent", true},
		{"torrent", "/a/b.torrent", true},
		{".torrent", "/a/b.torrents", false},
		{"", "/a/anything", true},
		{".t[o]rrent", "/a/b.t[o]rrent", true},
		{".t[o]rrent", "/a/b.torrent", false},
	}
	for _, tt := range tests {
		g, err := extensionMatcher(tt.ext)
		if err != nil {
			t.Fatalf("extensionMatcher(%q) error = %v", tt.ext, err)
		}
		if got := g.Match(tt.path); got != tt.want {
			t.Errorf("match(%q, %q) = %v, want %v", tt.ext, tt.path, got, tt.want)
		}
	}
}
