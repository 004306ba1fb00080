// Package internal contains integration tests that wire the worker
// supervisor, relay, boundary and metrics together by hand and check that
// lifecycle events reach every observer.
package internal

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/torrpeddo/torrpeddo/internal/boundary"
	"github.com/torrpeddo/torrpeddo/internal/deploy"
	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
	"github.com/torrpeddo/torrpeddo/internal/relay"
	"github.com/torrpeddo/torrpeddo/internal/testutil"
	"github.com/torrpeddo/torrpeddo/internal/worker"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunFakeWorker()
	os.Exit(m.Run())
}

type cancelPicker struct{}

func (cancelPicker) SelectDirectory(context.Context) dialog.Result { return dialog.Cancelled() }
func (cancelPicker) SelectFile(context.Context, string) dialog.Result {
	return dialog.Cancelled()
}

// pipeline is the host wiring without the shell.
type pipeline struct {
	bus     *event.Bus
	metrics *metrics.Metrics
	sup     *worker.Supervisor
	bridge  *relay.Bridge
	bound   *boundary.Boundary
}

func newPipeline(t *testing.T, mode string) *pipeline {
	t.Helper()
	p := &pipeline{bus: event.NewBus(), metrics: metrics.New()}
	detach := p.metrics.Observe(p.bus)

	p.sup = worker.New(deploy.ModePackaged, deploy.Layout{},
		worker.WithBus(p.bus),
		worker.WithStopTimeout(time.Second),
		worker.WithLineHandler(func(line []byte) { p.bridge.HandleLine(line) }),
		worker.WithResolver(func() (deploy.Command, error) {
			return testutil.FakeWorkerCommand(mode), nil
		}))
	p.bridge = relay.New(p.sup, func(msg relay.Message) {
		p.bound.Publish(boundary.OutboundWorkerData, msg)
	}, relay.WithBus(p.bus), relay.WithMetrics(p.metrics))
	p.bound = boundary.New(p.bridge, cancelPicker{},
		boundary.WithBus(p.bus), boundary.WithMetrics(p.metrics))

	t.Cleanup(func() {
		_ = p.sup.Stop()
		detach()
	})
	return p
}

// TestLifecycleEvents checks that one worker run produces the expected
// event sequence on the bus, in order.
func TestLifecycleEvents(t *testing.T) {
	p := newPipeline(t, testutil.ModeBridge)

	var mu sync.Mutex
	var types []string
	p.bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})

	var replies sync.WaitGroup
	replies.Add(1)
	unsub, err := p.bound.Subscribe("worker-data", func(relay.Message) { replies.Done() })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	if _, err := p.sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx := context.Background()
	p.bound.Dispatch(ctx, "open-external", relay.NewMessage("https://example.com"))
	p.bound.Dispatch(ctx, "to-worker", relay.NewMessage(map[string]any{"id": 1, "command": "garble"}))

	waitGroup(t, &replies, 10*time.Second)
	if err := p.sup.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{
		event.TypeWorkerStarted,
		event.TypeChannelRejected,
		event.TypeRecordDropped,
		event.TypeWorkerStopped,
	}
	if len(types) != len(expected) {
		t.Fatalf("events = %v, want %v", types, expected)
	}
	for i, want := range expected {
		if types[i] != want {
			t.Errorf("event %d = %q, want %q", i, types[i], want)
		}
	}
}

// TestMetricsFollowWorker checks the counters a scrape would see after a
// start, a relayed reply, a crash and a failed restart.
func TestMetricsFollowWorker(t *testing.T) {
	p := newPipeline(t, testutil.ModeBridge)
	m := p.metrics

	got := make(chan struct{}, 1)
	unsub, err := p.bound.Subscribe("worker-data", func(relay.Message) { got <- struct{}{} })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	died := make(chan struct{})
	p.bus.Subscribe(event.TypeWorkerDied, func(event.Event) { close(died) })

	if _, err := p.sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if v := promtest.ToFloat64(m.WorkerUp); v != 1 {
		t.Errorf("worker_up = %v after start, want 1", v)
	}

	if err := p.bridge.Send(relay.NewMessage(map[string]any{"id": 1, "command": "ping"})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case <-got:
	case <-time.After(10 * time.Second):
		t.Fatal("no reply from worker")
	}

	if err := p.bridge.Send(relay.NewMessage(map[string]any{"id": 2, "command": "crash"})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case <-died:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not die")
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"worker_starts", promtest.ToFloat64(m.WorkerStarts), 1},
		{"worker_up", promtest.ToFloat64(m.WorkerUp), 0},
		{"exits died", promtest.ToFloat64(m.WorkerExits.WithLabelValues("died")), 1},
		{"relayed to_worker", promtest.ToFloat64(m.MessagesRelayed.WithLabelValues(metrics.DirectionToWorker)), 2},
		{"relayed to_host", promtest.ToFloat64(m.MessagesRelayed.WithLabelValues(metrics.DirectionToHost)), 1},
		{"decode errors", promtest.ToFloat64(m.DecodeErrors), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for replies")
	}
}
