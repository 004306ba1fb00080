package relay

import (
	"bytes"
	"sync/atomic"

	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/logging"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
)

// Sender writes one encoded record to the worker. *worker.Supervisor
// satisfies it.
type Sender interface {
	Send(line []byte) error
}

// RelayFunc receives every decoded worker message, in arrival order.
type RelayFunc func(Message)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithBus publishes a RecordDroppedEvent for every malformed record.
func WithBus(bus *event.Bus) Option {
	return func(b *Bridge) {
		b.bus = bus
	}
}

// WithMetrics records relay counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// Bridge connects host code to the worker's record stream.
type Bridge struct {
	sender  Sender
	relay   RelayFunc
	logger  *logging.Logger
	bus     *event.Bus
	metrics *metrics.Metrics

	lines   atomic.Int64
	dropped atomic.Int64
}

// New creates a Bridge writing through sender and relaying worker output to
// relay. Both must be non-nil.
func New(sender Sender, relay RelayFunc, opts ...Option) *Bridge {
	if sender == nil {
		panic("relay: Sender must not be nil")
	}
	if relay == nil {
		panic("relay: RelayFunc must not be nil")
	}

	b := &Bridge{
		sender: sender,
		relay:  relay,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NopLogger()
	}
	b.logger = b.logger.WithComponent("relay")
	return b
}

// Send encodes msg and writes it to the worker. With no live worker the
// sender drops it silently.
func (b *Bridge) Send(msg Message) error {
	line, err := Encode(msg)
	if err != nil {
		b.logger.Warn("dropping unencodable message", "error", err)
		return err
	}
	if err := b.sender.Send(line); err != nil {
		b.logger.Warn("write to worker failed", "error", err)
		return err
	}
	b.metrics.Relayed(metrics.DirectionToWorker)
	return nil
}

// HandleLine decodes one worker record and relays it. Blank lines are
// skipped; malformed records are dropped without interrupting the stream.
func (b *Bridge) HandleLine(line []byte) {
	n := b.lines.Add(1)
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	msg, err := decodeAt(n, line)
	if err != nil {
		b.drop(n, err)
		return
	}

	b.metrics.Relayed(metrics.DirectionToHost)
	b.relay(msg)
}

func (b *Bridge) drop(n int64, err error) {
	b.dropped.Add(1)
	b.metrics.DecodeFailed()

	args := []any{"line", n}
	var decErr *errors.DecodeError
	if errors.As(err, &decErr) {
		args = append(args, "excerpt", decErr.Excerpt)
	}
	b.logger.Err("dropping malformed worker record", err, args...)
	if b.bus != nil {
		b.bus.Publish(event.NewRecordDroppedEvent(n, err.Error()))
	}
}

// Lines returns how many worker lines have been seen, blank ones included.
func (b *Bridge) Lines() int64 {
	return b.lines.Load()
}

// Dropped returns how many records failed to decode.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Reset restarts line numbering and the drop count, used when a new worker
// is spawned.
func (b *Bridge) Reset() {
	b.lines.Store(0)
	b.dropped.Store(0)
}
