// Package metrics exposes prometheus counters for the worker bridge.
//
// Every Metrics value owns its registry, so hosts and tests never share
// global collector state. All recording methods are safe on a nil
// *Metrics, which lets components take metrics as an optional dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torrpeddo/torrpeddo/internal/event"
)

// Relay directions used as the "direction" label.
const (
	DirectionToWorker = "to_worker"
	DirectionToHost   = "to_host"
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Metrics holds the host's collectors.
type Metrics struct {
	reg *prometheus.Registry

	MessagesRelayed *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	UnknownChannels *prometheus.CounterVec
	WorkerStarts    prometheus.Counter
	SpawnFailures   prometheus.Counter
	WorkerExits     *prometheus.CounterVec
	WorkerUp        prometheus.Gauge
	GatewayClients  prometheus.Gauge
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		MessagesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "torrpeddo_messages_relayed_total",
			Help: "Messages relayed across the worker bridge",
		}, []string{"direction"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "torrpeddo_decode_errors_total",
			Help: "Malformed worker records dropped by the relay",
		}),
		UnknownChannels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "torrpeddo_unknown_channel_total",
			Help: "Channel names rejected by the capability boundary",
		}, []string{"direction"}),
		WorkerStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "torrpeddo_worker_starts_total",
			Help: "Worker processes spawned",
		}),
		SpawnFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "torrpeddo_worker_spawn_failures_total",
			Help: "Worker spawn attempts that failed",
		}),
		WorkerExits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "torrpeddo_worker_exits_total",
			Help: "Worker exits by reason (stopped or died)",
		}, []string{"reason"}),
		WorkerUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "torrpeddo_worker_up",
			Help: "1 while a worker process is live",
		}),
		GatewayClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "torrpeddo_gateway_clients",
			Help: "Connected UI websocket clients",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Relayed counts one message relayed in direction.
func (m *Metrics) Relayed(direction string) {
	if m == nil {
		return
	}
	m.MessagesRelayed.WithLabelValues(direction).Inc()
}

// DecodeFailed counts one dropped worker record.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// ChannelRejected counts one unknown channel name.
func (m *Metrics) ChannelRejected(direction string) {
	if m == nil {
		return
	}
	m.UnknownChannels.WithLabelValues(direction).Inc()
}

// ClientConnected tracks a UI client joining the gateway.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.GatewayClients.Inc()
}

// ClientDisconnected tracks a UI client leaving the gateway.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.GatewayClients.Dec()
}

// Observe derives worker lifecycle metrics from bus events and returns a
// function that detaches them.
func (m *Metrics) Observe(bus *event.Bus) func() {
	if m == nil || bus == nil {
		return func() {}
	}

	ids := []string{
		bus.Subscribe(event.TypeWorkerStarted, func(event.Event) {
			m.WorkerStarts.Inc()
			m.WorkerUp.Set(1)
		}),
		bus.Subscribe(event.TypeWorkerStopped, func(event.Event) {
			m.WorkerExits.WithLabelValues("stopped").Inc()
			m.WorkerUp.Set(0)
		}),
		bus.Subscribe(event.TypeWorkerDied, func(event.Event) {
			m.WorkerExits.WithLabelValues("died").Inc()
			m.WorkerUp.Set(0)
		}),
		bus.Subscribe(event.TypeWorkerSpawnFailed, func(event.Event) {
			m.SpawnFailures.Inc()
		}),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}
