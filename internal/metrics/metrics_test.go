package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrpeddo/torrpeddo/internal/event"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Relayed(DirectionToWorker)
	m.Relayed(DirectionToWorker)
	m.Relayed(DirectionToHost)
	m.DecodeFailed()
	m.ChannelRejected(DirectionInbound)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues(DirectionToWorker)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues(DirectionToHost)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnknownChannels.WithLabelValues(DirectionInbound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayClients))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Relayed(DirectionToHost)
		m.DecodeFailed()
		m.ChannelRejected(DirectionOutbound)
		m.ClientConnected()
		m.ClientDisconnected()
		m.Observe(event.NewBus())()
	})
}

func TestObserve(t *testing.T) {
	m := New()
	bus := event.NewBus()
	detach := m.Observe(bus)

	bus.Publish(event.NewWorkerStartedEvent("run-1", 10, "/bin/bridge", "packaged"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerUp))

	bus.Publish(event.NewWorkerDiedEvent("run-1", 10, 1, "exit status 1"))
	bus.Publish(event.NewWorkerStartedEvent("run-2", 11, "/bin/bridge", "packaged"))
	bus.Publish(event.NewWorkerStoppedEvent("run-2", 11))
	bus.Publish(event.NewWorkerSpawnFailedEvent("/bin/bridge", "missing"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkerStarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerExits.WithLabelValues("died")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerExits.WithLabelValues("stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpawnFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WorkerUp))

	detach()
	assert.Equal(t, 0, bus.SubscriptionCount())

	bus.Publish(event.NewWorkerStartedEvent("run-3", 12, "/bin/bridge", "packaged"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkerStarts), "detached metrics must not count")
}

func TestHandler(t *testing.T) {
	m := New()
	m.Relayed(DirectionToHost)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `torrpeddo_messages_relayed_total{direction="to_host"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.DecodeFailed()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DecodeErrors))
}
