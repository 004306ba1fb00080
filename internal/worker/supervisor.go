package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/torrpeddo/torrpeddo/internal/deploy"
	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/logging"
)

// State is the supervisor's lifecycle state.
type State int

const (
	// StateIdle means no worker has been started yet.
	StateIdle State = iota
	// StateRunning means a worker is live.
	StateRunning
	// StateStopped means the last worker was stopped on request.
	StateStopped
	// StateDied means the last worker exited without being asked to.
	StateDied
)

// String returns a lowercase name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDied:
		return "died"
	default:
		return "unknown"
	}
}

// LineHandler receives one stdout record. It runs on the reader goroutine,
// so records arrive strictly in the order the worker wrote them.
type LineHandler func(line []byte)

// StartHandler is called once per worker after it has been spawned and
// before any of its output is delivered.
type StartHandler func(h Handle)

// ExitHandler is called once per worker after it has exited. err is nil
// when the exit followed Stop and a *errors.WorkerDiedError otherwise.
type ExitHandler func(h Handle, err error)

// Handle is a snapshot of one worker process.
type Handle struct {
	RunID     string
	PID       int
	Path      string
	Mode      deploy.Mode
	StartedAt time.Time
	Alive     bool
}

// pipeDrainDelay bounds how long Wait keeps copying output after the worker
// exits. Descendants that inherited stdout or stderr can hold it open.
const pipeDrainDelay = time.Second

// process is the live worker owned by the supervisor.
type process struct {
	handle Handle
	cmd    *exec.Cmd

	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter

	writeMu sync.Mutex
	stdin   io.WriteCloser

	// guarded by Supervisor.mu
	stopping bool

	done chan struct{}
}

// Supervisor owns the lifecycle of the backend worker.
type Supervisor struct {
	mode   deploy.Mode
	layout deploy.Layout
	opts   *options
	logger *logging.Logger

	mu    sync.Mutex
	proc  *process
	state State
}

// New creates a Supervisor for the given deployment mode and layout.
// Nothing is spawned until Start.
func New(mode deploy.Mode, layout deploy.Layout, opts ...Option) *Supervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}

	s := &Supervisor{
		mode:   mode,
		layout: layout,
		opts:   o,
		logger: o.logger.WithComponent("supervisor"),
	}
	if o.resolver == nil {
		o.resolver = func() (deploy.Command, error) {
			return deploy.Resolve(s.mode, o.goos, s.layout)
		}
	}
	return s
}

// Start spawns the worker. It fails with errors.ErrAlreadyRunning while a
// worker is live and with a *errors.SpawnError when the executable is
// missing or cannot be started. Spawn failures are never retried.
func (s *Supervisor) Start(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		return nil, errors.ErrAlreadyRunning
	}

	spec, err := s.opts.resolver()
	if err != nil {
		return nil, s.spawnFailed(errors.NewSpawnError("", err))
	}

	path, err := locate(spec.Path)
	if err != nil {
		return nil, s.spawnFailed(errors.NewSpawnError(spec.Path, err).WithArgs(spec.Args))
	}
	if spec.Script != "" {
		if _, err := os.Stat(spec.Script); err != nil {
			return nil, s.spawnFailed(errors.NewSpawnError(spec.Script, err).WithArgs(spec.Args))
		}
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, s.spawnFailed(errors.NewSpawnError(path, fmt.Errorf("stdin pipe: %w", err)))
	}
	// Output goes through in-process pipes so that Wait, not the readers,
	// decides when the worker's output is finished.
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil, s.spawnFailed(errors.NewSpawnError(path, err).WithArgs(spec.Args))
	}

	p := &process{
		handle: Handle{
			RunID:     uuid.NewString(),
			PID:       cmd.Process.Pid,
			Path:      path,
			Mode:      spec.Mode,
			StartedAt: time.Now(),
			Alive:     true,
		},
		cmd:     cmd,
		stdoutW: stdoutW,
		stderrW: stderrW,
		stdin:   stdin,
		done:    make(chan struct{}),
	}
	s.proc = p
	s.state = StateRunning
	if s.opts.onStart != nil {
		s.opts.onStart(p.handle)
	}

	logger := s.logger.WithRunID(p.handle.RunID)
	var readers conc.WaitGroup
	readers.Go(func() { s.readStdout(p, stdout, logger) })
	readers.Go(func() { s.readStderr(stderr, logger) })
	go s.reap(p, &readers, logger)

	logger.Info("worker started",
		"pid", p.handle.PID,
		"path", path,
		"args", spec.Args,
		"mode", spec.Mode.String())
	s.publish(event.NewWorkerStartedEvent(p.handle.RunID, p.handle.PID, path, spec.Mode.String()))

	h := p.handle
	return &h, nil
}

// Send writes one record to the worker's stdin, adding the trailing newline
// if it is missing. Without a live worker it does nothing and returns nil.
func (s *Supervisor) Send(line []byte) error {
	s.mu.Lock()
	p := s.proc
	stopping := p != nil && p.stopping
	s.mu.Unlock()

	if p == nil || stopping {
		s.logger.Debug("send without live worker", "bytes", len(line))
		return nil
	}

	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line[:len(line):len(line)], '\n')
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(line); err != nil {
		return fmt.Errorf("write worker stdin: %w", err)
	}
	return nil
}

// Stop terminates the worker and waits until it has been reaped. Calling
// Stop without a live worker, or again while a stop is in progress, is a
// no-op apart from waiting for that stop to finish.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	if p.stopping {
		s.mu.Unlock()
		<-p.done
		return nil
	}
	p.stopping = true
	s.mu.Unlock()

	logger := s.logger.WithRunID(p.handle.RunID)
	logger.Info("stopping worker", "pid", p.handle.PID)

	p.writeMu.Lock()
	_ = p.stdin.Close()
	p.writeMu.Unlock()

	timer := time.NewTimer(s.opts.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	logger.Warn("worker ignored stdin close, killing", "pid", p.handle.PID, "timeout", s.opts.stopTimeout)
	if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		<-p.done
		return fmt.Errorf("kill worker %d: %w", p.handle.PID, err)
	}
	<-p.done
	return nil
}

// Handle returns a snapshot of the live worker. It fails with
// errors.ErrNotRunning when there is none.
func (s *Supervisor) Handle() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return Handle{}, errors.ErrNotRunning
	}
	return s.proc.handle, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether a worker is live.
func (s *Supervisor) IsRunning() bool {
	return s.State() == StateRunning
}

func (s *Supervisor) readStdout(p *process, r io.Reader, logger *logging.Logger) {
	defer drain(r)
	defer func() {
		if v := recover(); v != nil {
			_ = killProcessGroup(p.cmd.Process)
			panic(v)
		}
	}()
	oversize := func(n int) {
		logger.Warn("worker record exceeds limit, dropped", "bytes", n, "limit", s.opts.maxRecordBytes)
	}
	err := readLines(r, s.opts.maxRecordBytes, func(line []byte) {
		s.deliver(line, logger)
	}, oversize)
	if err != nil {
		logger.Debug("worker stdout closed", "error", err)
	}
}

// deliver hands one line to the handler, containing handler panics so one
// bad record cannot stop the relay.
func (s *Supervisor) deliver(line []byte, logger *logging.Logger) {
	if s.opts.onLine == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("line handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	s.opts.onLine(line)
}

func (s *Supervisor) readStderr(r io.Reader, logger *logging.Logger) {
	defer drain(r)
	err := readLines(r, s.opts.maxRecordBytes, func(line []byte) {
		logger.Warn("worker stderr", "line", string(line))
	}, nil)
	if err != nil {
		logger.Debug("worker stderr closed", "error", err)
	}
}

// drain discards whatever a reader left unread so the copy into the pipe
// never blocks Wait.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

// reap waits for the process, kills anything left in its process group,
// then lets both readers finish and records the outcome. Wait gives up on
// output still held open by descendants after pipeDrainDelay.
func (s *Supervisor) reap(p *process, readers *conc.WaitGroup, logger *logging.Logger) {
	waitErr := p.cmd.Wait()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Warn("worker output held open after exit", "pid", p.handle.PID, "delay", pipeDrainDelay)
		waitErr = nil
	}
	if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Debug("kill worker process group", "pid", p.handle.PID, "error", err)
	}
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
	if r := readers.WaitAndRecover(); r != nil {
		logger.Error("worker reader panicked", "panic", r.String())
	}

	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	requested := p.stopping
	if s.proc == p {
		s.proc = nil
		if requested {
			s.state = StateStopped
		} else {
			s.state = StateDied
		}
	}
	s.mu.Unlock()

	h := p.handle
	h.Alive = false

	if requested {
		logger.Info("worker stopped", "pid", h.PID, "exit_code", exitCode)
		s.publish(event.NewWorkerStoppedEvent(h.RunID, h.PID))
		s.notifyExit(h, nil)
	} else {
		cause := waitErr
		if cause == nil {
			cause = fmt.Errorf("exited with status %d", exitCode)
		}
		died := errors.NewWorkerDiedError(h.RunID, h.PID, exitCode, cause)
		logger.Err("worker died", died, "pid", h.PID, "exit_code", exitCode)
		s.publish(event.NewWorkerDiedEvent(h.RunID, h.PID, exitCode, cause.Error()))
		s.notifyExit(h, died)
	}

	close(p.done)
}

func (s *Supervisor) notifyExit(h Handle, err error) {
	if s.opts.onExit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("exit handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	s.opts.onExit(h, err)
}

func (s *Supervisor) spawnFailed(err *errors.SpawnError) error {
	s.logger.Err("worker spawn failed", err, "path", err.Path)
	s.publish(event.NewWorkerSpawnFailedEvent(err.Path, err.Error()))
	return err
}

func (s *Supervisor) publish(e event.Event) {
	if s.opts.bus != nil {
		s.opts.bus.Publish(e)
	}
}

// locate checks that path names an executable file. Bare names are looked
// up in PATH.
func locate(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty executable path")
	}
	if !strings.ContainsAny(path, `/\`) {
		return exec.LookPath(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", filepath.Clean(path))
	}
	return path, nil
}
