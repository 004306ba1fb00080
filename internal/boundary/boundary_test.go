package boundary

import (
	"context"
	"sync"
	"testing"

	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/event"
	"github.com/torrpeddo/torrpeddo/internal/relay"
)

// --- Mock implementations ------------------------------------------------

type mockForwarder struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *mockForwarder) Send(msg relay.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg.String())
	return f.err
}

func (f *mockForwarder) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type mockPicker struct {
	dirCalls  int
	fileCalls []string
	dir       dialog.Result
	file      dialog.Result
}

func (p *mockPicker) SelectDirectory(context.Context) dialog.Result {
	p.dirCalls++
	return p.dir
}

func (p *mockPicker) SelectFile(_ context.Context, ext string) dialog.Result {
	p.fileCalls = append(p.fileCalls, ext)
	return p.file
}

func newTestBoundary(opts ...Option) (*Boundary, *mockForwarder, *mockPicker) {
	f := &mockForwarder{}
	p := &mockPicker{dir: dialog.Cancelled(), file: dialog.Cancelled()}
	return New(f, p, opts...), f, p
}

func msg(t *testing.T, raw string) relay.Message {
	t.Helper()
	m, err := relay.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode(%q): %v", raw, err)
	}
	return m
}

// --- Tests ---------------------------------------------------------------

func TestChannelNames(t *testing.T) {
	for _, c := range InboundChannels() {
		if c.String() == "" {
			t.Errorf("inbound %d has no name", int(c))
		}
		if got, ok := ParseInbound(c.String()); !ok || got != c {
			t.Errorf("ParseInbound(%q) = %v, %v", c.String(), got, ok)
		}
	}
	for _, c := range OutboundChannels() {
		if c.String() == "" {
			t.Errorf("outbound %d has no name", int(c))
		}
		if got, ok := ParseOutbound(c.String()); !ok || got != c {
			t.Errorf("ParseOutbound(%q) = %v, %v", c.String(), got, ok)
		}
	}

	if len(InboundChannels()) != 3 || len(OutboundChannels()) != 2 {
		t.Errorf("channel sets changed: %v / %v", InboundChannels(), OutboundChannels())
	}
	if !InboundToWorker.Forwarding() || InboundSelectDirectory.Forwarding() || InboundSelectTorrentFile.Forwarding() {
		t.Error("only to-worker should be a forwarding channel")
	}
	if Inbound(0).Valid() || Inbound(99).Valid() || Outbound(0).Valid() {
		t.Error("out-of-range channels must not be valid")
	}
	if Inbound(99).String() != "" || Outbound(-1).String() != "" {
		t.Error("out-of-range channels must have no name")
	}
}

func TestInboundAndOutboundSetsAreDisjoint(t *testing.T) {
	for _, c := range OutboundChannels() {
		if _, ok := ParseInbound(c.String()); ok {
			t.Errorf("outbound name %q is also inbound", c)
		}
	}
}

func TestDispatch_UnknownChannelHasNoEffect(t *testing.T) {
	bus := event.NewBus()
	var rejected []string
	bus.Subscribe(event.TypeChannelRejected, func(e event.Event) {
		rejected = append(rejected, e.(event.ChannelRejectedEvent).Name)
	})

	b, f, p := newTestBoundary(WithBus(bus))

	names := []string{
		"",
		"to-python",
		"python-data",
		"worker-data",
		"worker-status",
		"TO-WORKER",
		"to-worker ",
		" select-directory",
		"select-file",
		"shell.openExternal",
		"__proto__",
	}
	payload := msg(t, `{"type":"add_torrent","path":"x.torrent"}`)

	for _, name := range names {
		res, replied := b.Dispatch(context.Background(), name, payload)
		if replied || res != (dialog.Result{}) {
			t.Errorf("Dispatch(%q) replied %+v", name, res)
		}
	}

	if sent := f.Sent(); len(sent) != 0 {
		t.Errorf("unknown channels reached the worker: %v", sent)
	}
	if p.dirCalls != 0 || len(p.fileCalls) != 0 {
		t.Errorf("unknown channels reached the pickers: dir=%d file=%v", p.dirCalls, p.fileCalls)
	}
	if len(rejected) != len(names) {
		t.Errorf("rejected events = %d, want %d", len(rejected), len(names))
	}
}

func TestDispatch_ToWorkerForwardsPayloadUntouched(t *testing.T) {
	b, f, p := newTestBoundary()

	payload := msg(t, `{"id":7,"command":"add_torrent","args":{"path":"/tmp/x.torrent","seq":[1,2.50]}}`)
	_, replied := b.Dispatch(context.Background(), "to-worker", payload)
	if replied {
		t.Error("forwarding channel must not reply")
	}

	sent := f.Sent()
	if len(sent) != 1 || sent[0] != payload.String() {
		t.Errorf("sent = %v, want [%s]", sent, payload)
	}
	if p.dirCalls != 0 || len(p.fileCalls) != 0 {
		t.Error("forwarding must not touch the pickers")
	}
}

func TestDispatch_ForwardErrorIsSwallowed(t *testing.T) {
	b, f, _ := newTestBoundary()
	f.err = errors.New("broken pipe")

	if _, replied := b.Dispatch(context.Background(), "to-worker", msg(t, `{}`)); replied {
		t.Error("forward failure must not produce a reply")
	}
}

func TestDispatch_HostNativeChannels(t *testing.T) {
	b, f, p := newTestBoundary()
	p.dir = dialog.Result{Path: "/downloads"}
	p.file = dialog.Result{Path: "/downloads/ubuntu.torrent"}

	res, replied := b.Dispatch(context.Background(), "select-directory", relay.Message{})
	if !replied || res != p.dir {
		t.Errorf("select-directory = %+v, %v", res, replied)
	}

	res, replied = b.Dispatch(context.Background(), "select-torrent-file", relay.Message{})
	if !replied || res != p.file {
		t.Errorf("select-torrent-file = %+v, %v", res, replied)
	}
	if len(p.fileCalls) != 1 || p.fileCalls[0] != ".torrent" {
		t.Errorf("file filter = %v, want [.torrent]", p.fileCalls)
	}
	if len(f.Sent()) != 0 {
		t.Error("host-native channels must not reach the worker")
	}
}

func TestDispatch_CancelledPickers(t *testing.T) {
	b, f, _ := newTestBoundary()

	for _, name := range []string{"select-directory", "select-torrent-file"} {
		res, replied := b.Dispatch(context.Background(), name, relay.Message{})
		if !replied {
			t.Errorf("%s: no reply", name)
		}
		if res != (dialog.Result{Cancelled: true}) {
			t.Errorf("%s = %+v, want exactly {cancelled:true}", name, res)
		}
	}
	if len(f.Sent()) != 0 {
		t.Error("cancelled pickers must not forward anything")
	}
}

func TestSubscribe_UnknownNameRejected(t *testing.T) {
	b, _, _ := newTestBoundary()

	for _, name := range []string{"python-data", "to-worker", "", "Worker-Data"} {
		unsub, err := b.Subscribe(name, func(relay.Message) {})
		if unsub != nil {
			t.Errorf("Subscribe(%q) returned an unsubscribe func", name)
		}
		var chErr *errors.UnknownChannelError
		if !errors.As(err, &chErr) {
			t.Fatalf("Subscribe(%q) error = %v, want *UnknownChannelError", name, err)
		}
		if chErr.Name != name || chErr.Direction != "outbound" {
			t.Errorf("error = %+v", chErr)
		}
		if !errors.Is(err, errors.ErrUnknownChannel) {
			t.Error("error should match ErrUnknownChannel")
		}
	}
}

func TestSubscribe_NilCallback(t *testing.T) {
	b, _, _ := newTestBoundary()
	if _, err := b.Subscribe("worker-data", nil); err == nil {
		t.Error("nil callback should be rejected")
	}
}

func TestPublish_OrderAndIsolation(t *testing.T) {
	b, _, _ := newTestBoundary()

	var data, status []string
	unsub, err := b.Subscribe("worker-data", func(m relay.Message) { data = append(data, m.String()) })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := b.Subscribe("worker-status", func(m relay.Message) { status = append(status, m.String()) }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Publish(OutboundWorkerData, msg(t, `{"id":1}`))
	b.Publish(OutboundWorkerStatus, msg(t, `{"state":"running"}`))
	b.Publish(OutboundWorkerData, msg(t, `{"id":2}`))

	if len(data) != 2 || data[0] != `{"id":1}` || data[1] != `{"id":2}` {
		t.Errorf("worker-data = %v", data)
	}
	if len(status) != 1 || status[0] != `{"state":"running"}` {
		t.Errorf("worker-status = %v", status)
	}

	unsub()
	unsub()
	b.Publish(OutboundWorkerData, msg(t, `{"id":3}`))
	if len(data) != 2 {
		t.Errorf("unsubscribed callback still called: %v", data)
	}
	if b.subscribers(OutboundWorkerData) != 0 || b.subscribers(OutboundWorkerStatus) != 1 {
		t.Errorf("subscriber counts = %d/%d", b.subscribers(OutboundWorkerData), b.subscribers(OutboundWorkerStatus))
	}
}

func TestPublish_RegistrationOrderAndPanicRecovery(t *testing.T) {
	b, _, _ := newTestBoundary()

	var order []string
	mustSub := func(name string, cb Callback) {
		t.Helper()
		if _, err := b.Subscribe("worker-data", cb); err != nil {
			t.Fatalf("Subscribe(%s): %v", name, err)
		}
	}
	mustSub("first", func(relay.Message) { order = append(order, "first") })
	mustSub("panicky", func(relay.Message) { panic("ui went away") })
	mustSub("last", func(relay.Message) { order = append(order, "last") })

	b.Publish(OutboundWorkerData, msg(t, `{}`))

	if len(order) != 2 || order[0] != "first" || order[1] != "last" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestPublish_InvalidChannel(t *testing.T) {
	b, _, _ := newTestBoundary()
	called := false
	if _, err := b.Subscribe("worker-data", func(relay.Message) { called = true }); err != nil {
		t.Fatal(err)
	}
	b.Publish(Outbound(0), msg(t, `{}`))
	b.Publish(Outbound(42), msg(t, `{}`))
	if called {
		t.Error("invalid outbound channel must not deliver")
	}
}

func TestNew_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New() with nil forwarder should panic")
		}
	}()
	New(nil, &mockPicker{})
}
