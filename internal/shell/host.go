// Package shell wires the worker bridge together and runs it.
//
// A Host owns exactly one of each component and injects them into one
// another: the supervisor feeds worker lines to the relay, the relay
// publishes decoded messages on the boundary's worker-data channel, and the
// boundary forwards UI commands back through the relay. Worker lifecycle
// changes are published on the worker-status channel so a dead worker is
// visible to the UI as an ordinary message.
package shell

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/torrpeddo/torrpeddo/internal/boundary"
	"github.com/torrpeddo/torrpeddo/internal/config"
	"github.com/torrpeddo/torrpeddo/internal/deploy"
	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/gateway"
	"github.com/torrpeddo/torrpeddo/internal/logging"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
	"github.com/torrpeddo/torrpeddo/internal/relay"
	"github.com/torrpeddo/torrpeddo/internal/worker"
)

// Worker states published on the worker-status channel.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusDied    = "died"
	StatusFailed  = "failed"
)

const shutdownTimeout = 5 * time.Second

// Option configures a Host.
type Option func(*hostOptions)

type hostOptions struct {
	logger   *logging.Logger
	picker   dialog.Picker
	resolver worker.Resolver
	gateway  bool
	onReady  func(url string)
}

// WithLogger sets the logger every component derives from.
func WithLogger(logger *logging.Logger) Option {
	return func(o *hostOptions) {
		o.logger = logger
	}
}

// WithPicker replaces the native dialog picker.
func WithPicker(p dialog.Picker) Option {
	return func(o *hostOptions) {
		o.picker = p
	}
}

// WithResolver replaces deployment resolution for the worker.
func WithResolver(r worker.Resolver) Option {
	return func(o *hostOptions) {
		o.resolver = r
	}
}

// WithReadyHandler sets a function called with the UI address once the
// gateway is listening.
func WithReadyHandler(fn func(url string)) Option {
	return func(o *hostOptions) {
		o.onReady = fn
	}
}

// WithoutGateway builds the host without the HTTP front end, for in-process
// UIs such as the terminal console.
func WithoutGateway() Option {
	return func(o *hostOptions) {
		o.gateway = false
	}
}

// Host is the composition root of the bridge.
type Host struct {
	cfg    *config.Config
	mode   deploy.Mode
	layout deploy.Layout
	logger *logging.Logger

	bus        *event.Bus
	metrics    *metrics.Metrics
	supervisor *worker.Supervisor
	bridge     *relay.Bridge
	boundary   *boundary.Boundary
	gateway    *gateway.Server
	onReady    func(url string)

	detachMetrics func()
	shutdownOnce  sync.Once
	shutdownErr   error
}

// New builds a Host from cfg. Nothing is started until Run or StartWorker.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	o := &hostOptions{gateway: cfg.Gateway.Enabled}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}

	mode, err := deploy.Detect(cfg.Worker.Mode, os.LookupEnv)
	if err != nil {
		return nil, err
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

	h := &Host{
		cfg:     cfg,
		mode:    mode,
		layout:  layout,
		logger:  o.logger.WithComponent("host"),
		bus:     event.NewBus(),
		metrics: metrics.New(),
		onReady: o.onReady,
	}
	h.bus.OnPanic(func(eventType string, recovered any, stack []byte) {
		h.logger.Error("event handler panicked", "event", eventType, "panic", recovered, "stack", string(stack))
	})
	h.detachMetrics = h.metrics.Observe(h.bus)

	supOpts := []worker.Option{
		worker.WithLogger(o.logger),
		worker.WithBus(h.bus),
		worker.WithLineHandler(func(line []byte) { h.bridge.HandleLine(line) }),
		worker.WithStartHandler(func(worker.Handle) { h.bridge.Reset() }),
		worker.WithExitHandler(h.onWorkerExit),
		worker.WithStopTimeout(cfg.Worker.StopTimeout()),
		worker.WithMaxRecordBytes(cfg.Worker.MaxRecordBytes),
	}
	if o.resolver != nil {
		supOpts = append(supOpts, worker.WithResolver(o.resolver))
	}
	h.supervisor = worker.New(mode, layout, supOpts...)

	h.bridge = relay.New(h.supervisor, func(msg relay.Message) {
		h.boundary.Publish(boundary.OutboundWorkerData, msg)
	}, relay.WithLogger(o.logger), relay.WithBus(h.bus), relay.WithMetrics(h.metrics))

	picker := o.picker
	if picker == nil {
		picker = dialog.NewNativePicker(cfg.Dialog.Backend, dialog.WithLogger(o.logger))
	}
	h.boundary = boundary.New(h.bridge, picker,
		boundary.WithLogger(o.logger),
		boundary.WithBus(h.bus),
		boundary.WithMetrics(h.metrics))

	if o.gateway {
		gw, err := gateway.New(h.boundary, gateway.Config{
			Addr:           cfg.Gateway.Addr,
			StaticDir:      cfg.Gateway.StaticDir,
			AllowedOrigins: cfg.Gateway.AllowedOrigins,
			SendQueue:      cfg.Gateway.SendQueue,
			Metrics:        cfg.Metrics.Enabled,
		}, gateway.WithLogger(o.logger), gateway.WithMetrics(h.metrics))
		if err != nil {
			h.detachMetrics()
			return nil, err
		}
		h.gateway = gw
	}

	return h, nil
}

// Mode returns the resolved deployment mode.
func (h *Host) Mode() deploy.Mode { return h.mode }

// Boundary returns the UI-facing capability boundary.
func (h *Host) Boundary() *boundary.Boundary { return h.boundary }

// Supervisor returns the worker supervisor.
func (h *Host) Supervisor() *worker.Supervisor { return h.supervisor }

// Gateway returns the HTTP front end, or nil when disabled.
func (h *Host) Gateway() *gateway.Server { return h.gateway }

// Bus returns the host's event bus.
func (h *Host) Bus() *event.Bus { return h.bus }

// Metrics returns the host's metrics.
func (h *Host) Metrics() *metrics.Metrics { return h.metrics }

// StartWorker spawns the worker and announces it on worker-status. A spawn
// failure is announced as "failed" and returned.
func (h *Host) StartWorker(ctx context.Context) error {
	handle, err := h.supervisor.Start(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrSpawn) {
			h.publishStatus(map[string]any{"state": StatusFailed, "error": err.Error()})
		}
		return err
	}
	h.publishStatus(map[string]any{
		"state":  StatusRunning,
		"run_id": handle.RunID,
		"pid":    handle.PID,
	})
	return nil
}

// RestartWorker stops the live worker, if any, and starts a new one. It
// is an operator action; the UI has no channel for it.
func (h *Host) RestartWorker(ctx context.Context) error {
	if prev, err := h.supervisor.Handle(); err == nil {
		h.logger.Info("restarting worker", "previous_run_id", prev.RunID, "pid", prev.PID)
	} else {
		h.logger.Info("starting worker", "state", h.supervisor.State().String())
	}
	if err := h.supervisor.Stop(); err != nil {
		return err
	}
	return h.StartWorker(ctx)
}

// StopWorker stops the live worker, if any.
func (h *Host) StopWorker() error {
	return h.supervisor.Stop()
}

// Run starts the worker (when auto_start is set) and the gateway, then
// blocks until ctx is done. The worker is stopped on every return path.
// A worker spawn failure does not end Run: the UI keeps running and sees
// the failure on worker-status.
func (h *Host) Run(ctx context.Context) error {
	defer func() { _ = h.Shutdown() }()

	if h.gateway != nil {
		if err := h.gateway.Start(ctx); err != nil {
			return err
		}
		h.logger.Info("ui available", "url", h.gateway.URL())
		if h.onReady != nil {
			h.onReady(h.gateway.URL())
		}
	}

	if h.cfg.Worker.AutoStart {
		if err := h.StartWorker(ctx); err != nil {
			h.logger.Err("worker did not start", err)
		}
	}

	<-ctx.Done()
	h.logger.Info("host shutting down", "reason", context.Cause(ctx))
	return nil
}

// Shutdown stops the worker and the gateway and detaches metrics. It runs
// once; later calls return the first result.
func (h *Host) Shutdown() error {
	h.shutdownOnce.Do(func() {
		var errs []error
		if err := h.supervisor.Stop(); err != nil {
			errs = append(errs, err)
		}
		if h.gateway != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := h.gateway.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
		h.detachMetrics()
		h.shutdownErr = errors.Join(errs...)
	})
	return h.shutdownErr
}

// ApplyConfig takes the settings that can change while running. Only the
// log level is live; everything else needs a restart.
func (h *Host) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if level := logging.ParseLevel(cfg.Logging.Level); level != h.logger.Level() {
		h.logger.SetLevel(level)
		h.logger.Info("log level changed", "level", h.logger.Level())
	}
}

func (h *Host) onWorkerExit(handle worker.Handle, err error) {
	status := map[string]any{
		"state":   StatusStopped,
		"run_id":  handle.RunID,
		"records": h.bridge.Lines(),
		"dropped": h.bridge.Dropped(),
	}
	if err == nil {
		h.publishStatus(status)
		return
	}

	h.logger.Err("reporting worker exit", err, "run_id", handle.RunID)
	status["state"] = StatusDied
	status["error"] = err.Error()
	var died *errors.WorkerDiedError
	if errors.As(err, &died) {
		status["exit_code"] = died.ExitCode
	}
	h.publishStatus(status)
}

func (h *Host) publishStatus(status map[string]any) {
	h.boundary.Publish(boundary.OutboundWorkerStatus, relay.NewMessage(status))
}
