// Package boundary is the only surface the untrusted UI can reach.
//
// The UI talks to the host through named channels drawn from two fixed
// enumerations: [Inbound] for UI to host and [Outbound] for host to UI.
// Dispatch silently drops any inbound name that is not declared, so an
// unknown name has no effect at all. Subscribe rejects an undeclared
// outbound name with an error, since that is a wiring bug in host code.
//
// Inbound channels come in two kinds. The forwarding channel hands its
// payload, unexamined, to the relay and on to the worker. Host-native
// channels run the directory and file pickers and reply with a
// dialog.Result; they never touch the worker.
package boundary

import (
	"context"
	"fmt"
	"sync"

	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/logging"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
	"github.com/torrpeddo/torrpeddo/internal/relay"
)

// Forwarder delivers a command to the worker. *relay.Bridge satisfies it.
type Forwarder interface {
	Send(msg relay.Message) error
}

// Callback receives messages published on an outbound channel.
type Callback func(relay.Message)

// Option configures a Boundary.
type Option func(*Boundary)

// WithLogger sets the boundary's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Boundary) {
		b.logger = logger
	}
}

// WithBus publishes a ChannelRejectedEvent for every dropped inbound name.
func WithBus(bus *event.Bus) Option {
	return func(b *Boundary) {
		b.bus = bus
	}
}

// WithMetrics counts rejected channel names.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Boundary) {
		b.metrics = m
	}
}

type subscriber struct {
	id int
	cb Callback
}

// Boundary enforces the channel whitelist in both directions.
type Boundary struct {
	forwarder Forwarder
	picker    dialog.Picker
	logger    *logging.Logger
	bus       *event.Bus
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	nextID int
	subs   [numOutbound][]subscriber
}

// New creates a Boundary forwarding to f and serving host-native channels
// with picker. Both must be non-nil.
func New(f Forwarder, picker dialog.Picker, opts ...Option) *Boundary {
	if f == nil {
		panic("boundary: Forwarder must not be nil")
	}
	if picker == nil {
		panic("boundary: dialog.Picker must not be nil")
	}

	b := &Boundary{
		forwarder: f,
		picker:    picker,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NopLogger()
	}
	b.logger = b.logger.WithComponent("boundary")
	return b
}

// Dispatch handles one call from the UI. For a host-native channel it
// returns the picker result and true. For the forwarding channel, and for
// any undeclared name, it returns false; undeclared names are dropped
// without touching the worker or the pickers.
func (b *Boundary) Dispatch(ctx context.Context, name string, payload relay.Message) (dialog.Result, bool) {
	ch, ok := ParseInbound(name)
	if !ok {
		b.reject(name)
		return dialog.Result{}, false
	}

	switch ch {
	case InboundToWorker:
		if err := b.forwarder.Send(payload); err != nil {
			b.logger.WithChannel(name).Warn("forward to worker failed", "error", err)
		}
		return dialog.Result{}, false

	case InboundSelectDirectory:
		return b.picker.SelectDirectory(ctx), true

	case InboundSelectTorrentFile:
		return b.picker.SelectFile(ctx, TorrentExt), true
	}

	// Unreachable while every declared channel has a case above.
	b.logger.Error("inbound channel has no handler", "channel", name)
	return dialog.Result{}, false
}

func (b *Boundary) reject(name string) {
	b.logger.Debug("dropping call on undeclared channel", "channel", name)
	b.metrics.ChannelRejected(metrics.DirectionInbound)
	if b.bus != nil {
		b.bus.Publish(event.NewChannelRejectedEvent("inbound", name))
	}
}

// Subscribe registers cb for an outbound channel by wire name. It returns
// a function that removes the subscription. Undeclared names fail with a
// *errors.UnknownChannelError.
func (b *Boundary) Subscribe(name string, cb Callback) (func(), error) {
	ch, ok := ParseOutbound(name)
	if !ok {
		b.metrics.ChannelRejected(metrics.DirectionOutbound)
		return nil, errors.NewUnknownChannelError("outbound", name)
	}
	if cb == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", name)
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[ch] = append(b.subs[ch], subscriber{id: id, cb: cb})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(ch, id) })
	}, nil
}

func (b *Boundary) unsubscribe(ch Outbound, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[ch]
	for i, s := range subs {
		if s.id == id {
			b.subs[ch] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers msg to every subscriber of ch in registration order. A
// panicking subscriber is logged and skipped.
func (b *Boundary) Publish(ch Outbound, msg relay.Message) {
	if !ch.Valid() {
		b.logger.Error("publish on undeclared outbound channel", "channel", int(ch))
		return
	}

	b.mu.RLock()
	subs := b.subs[ch]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ch, s.cb, msg)
	}
}

func (b *Boundary) deliver(ch Outbound, cb Callback, msg relay.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithChannel(ch.String()).Error("subscriber panicked", "panic", fmt.Sprint(r))
		}
	}()
	cb(msg)
}

// subscribers returns the number of callbacks registered on ch.
func (b *Boundary) subscribers(ch Outbound) int {
	if !ch.Valid() {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ch])
}
