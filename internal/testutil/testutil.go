// Package testutil provides test helpers shared across Torrpeddo packages.
//
// The most useful one is the fake worker: a test binary whose TestMain
// calls MaybeRunFakeWorker can be spawned by the supervisor as a stand-in
// for the Python bridge, so process tests need no interpreter.
//
//	func TestMain(m *testing.M) {
//	    testutil.MaybeRunFakeWorker()
//	    os.Exit(m.Run())
//	}
//
//	cmd := testutil.FakeWorkerCommand("bridge")
package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/torrpeddo/torrpeddo/internal/deploy"
)

// FakeWorkerEnv switches a test binary into fake worker mode.
const FakeWorkerEnv = "TORRPEDDO_FAKE_WORKER"

// Fake worker modes.
const (
	// ModeEcho writes every stdin line back to stdout and exits on EOF.
	ModeEcho = "echo"
	// ModeEmit prints its arguments as records and exits with the status
	// given as the first argument.
	ModeEmit = "emit"
	// ModeStderr writes a traceback to stderr and one record to stdout,
	// then waits for EOF.
	ModeStderr = "stderr"
	// ModeStubborn ignores stdin EOF and has to be killed.
	ModeStubborn = "stubborn"
	// ModeBridge answers {id, command, args} requests the way the torrent
	// backend does: {id, data} or {id, error}. The "garble" command makes it
	// print one malformed record before the answer.
	ModeBridge = "bridge"
	// ModeSpawner starts a ModeSleep child that shares its stdout and
	// stderr, prints one record, then exits with the status given as the
	// first argument. With "hold" instead of a status it never exits on
	// its own and ignores stdin.
	ModeSpawner = "spawner"
	// ModeSleep sleeps long enough to outlive any test.
	ModeSleep = "sleep"
)

// FakeWorkerCommand returns a command that re-executes the running test
// binary as a fake worker in the given mode.
func FakeWorkerCommand(mode string, args ...string) deploy.Command {
	return deploy.Command{
		Mode: deploy.ModePackaged,
		Path: os.Args[0],
		Args: append([]string{"-test.run=^$", "--", mode}, args...),
		Env:  []string{FakeWorkerEnv + "=1"},
	}
}

// MaybeRunFakeWorker turns the process into a fake worker when it was
// started by FakeWorkerCommand. It never returns in that case.
func MaybeRunFakeWorker() {
	if os.Getenv(FakeWorkerEnv) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "fake worker: missing mode")
		os.Exit(2)
	}
	os.Exit(runFakeWorker(args[1], args[2:]))
}

func runFakeWorker(mode string, args []string) int {
	switch mode {
	case ModeEcho:
		fmt.Fprintln(os.Stderr, "fake worker ready")
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
		return 0

	case ModeEmit:
		code := 0
		if len(args) > 0 {
			code, _ = strconv.Atoi(args[0])
			args = args[1:]
		}
		for _, line := range args {
			fmt.Println(line)
		}
		return code

	case ModeStderr:
		fmt.Fprintln(os.Stderr, "Traceback: something went wrong")
		fmt.Println(`{"id":1,"data":"ok"}`)
		drainStdin()
		return 0

	case ModeStubborn:
		fmt.Println(`{"ready":true}`)
		drainStdin()
		time.Sleep(time.Minute)
		return 0

	case ModeBridge:
		return runBridge()

	case ModeSpawner:
		return runSpawner(args)

	case ModeSleep:
		time.Sleep(time.Minute)
		return 0
	}

	fmt.Fprintf(os.Stderr, "fake worker: unknown mode %q\n", mode)
	return 2
}

func drainStdin() {
	_, _ = bufio.NewReader(os.Stdin).ReadString(0)
}

func runSpawner(args []string) int {
	child := exec.Command(os.Args[0], "-test.run=^$", "--", ModeSleep)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "fake worker: start child:", err)
		return 2
	}
	fmt.Printf("{\"child\":%d}\n", child.Process.Pid)

	if len(args) > 0 && args[0] == "hold" {
		time.Sleep(time.Minute)
		return 0
	}
	code := 0
	if len(args) > 0 {
		code, _ = strconv.Atoi(args[0])
	}
	return code
}

func runBridge() int {
	sc := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	for sc.Scan() {
		var req struct {
			ID      any    `json:"id"`
			Command string `json:"command"`
			Args    any    `json:"args"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			_ = out.Encode(map[string]any{"id": nil, "error": "invalid request: " + err.Error()})
			continue
		}
		switch req.Command {
		case "garble":
			fmt.Println("{'not': 'json'}")
			_ = out.Encode(map[string]any{"id": req.ID, "data": "garbled"})
		case "crash":
			fmt.Fprintln(os.Stderr, "fatal: crash requested")
			return 3
		case "":
			_ = out.Encode(map[string]any{"id": req.ID, "error": "missing command"})
		default:
			_ = out.Encode(map[string]any{"id": req.ID, "data": map[string]any{"command": req.Command, "args": req.Args}})
		}
	}
	return 0
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers, suitable as a
// log sink in tests.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// WaitFor polls cond until it is true or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: "+msg, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
