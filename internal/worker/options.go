package worker

import (
	"runtime"
	"time"

	"github.com/torrpeddo/torrpeddo/internal/deploy"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/logging"
)

const (
	defaultStopTimeout    = 2 * time.Second
	defaultMaxRecordBytes = 4 * 1024 * 1024
)

// Resolver produces the command used to start the worker.
type Resolver func() (deploy.Command, error)

// Option configures a Supervisor.
type Option func(*options)

type options struct {
	logger         *logging.Logger
	bus            *event.Bus
	onLine         LineHandler
	onStart        StartHandler
	onExit         ExitHandler
	stopTimeout    time.Duration
	maxRecordBytes int
	goos           string
	resolver       Resolver
}

func defaultOptions() *options {
	return &options{
		logger:         logging.NopLogger(),
		stopTimeout:    defaultStopTimeout,
		maxRecordBytes: defaultMaxRecordBytes,
		goos:           runtime.GOOS,
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBus publishes lifecycle events on bus.
func WithBus(bus *event.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithLineHandler sets the function receiving stdout lines.
func WithLineHandler(h LineHandler) Option {
	return func(o *options) {
		o.onLine = h
	}
}

// WithStartHandler sets the function told about every spawned worker.
func WithStartHandler(h StartHandler) Option {
	return func(o *options) {
		o.onStart = h
	}
}

// WithExitHandler sets the function told about every worker exit.
func WithExitHandler(h ExitHandler) Option {
	return func(o *options) {
		o.onExit = h
	}
}

// WithStopTimeout sets how long Stop waits after closing stdin before it
// kills the worker. Negative values are treated as zero.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		o.stopTimeout = max(d, 0)
	}
}

// WithMaxRecordBytes bounds a single stdout line. Longer lines are dropped.
// Values below 1 keep the default (4 MiB).
func WithMaxRecordBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecordBytes = n
		}
	}
}

// WithGOOS resolves the packaged binary name for goos instead of the host OS.
func WithGOOS(goos string) Option {
	return func(o *options) {
		o.goos = goos
	}
}

// WithResolver replaces deployment resolution entirely.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}
