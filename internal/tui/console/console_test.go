package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/torrpeddo/torrpeddo/internal/boundary"
	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/relay"
)

type dispatched struct {
	name    string
	payload relay.Message
}

// mockChannels records dispatches and lets tests publish on subscriptions.
type mockChannels struct {
	mu         sync.Mutex
	dispatched []dispatched
	subs       map[string]boundary.Callback
	result     dialog.Result
	failOn     string
}

func newMockChannels() *mockChannels {
	return &mockChannels{subs: make(map[string]boundary.Callback), result: dialog.Cancelled()}
}

func (c *mockChannels) Dispatch(_ context.Context, name string, payload relay.Message) (dialog.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatched = append(c.dispatched, dispatched{name: name, payload: payload})
	if name == "to-worker" {
		return dialog.Result{}, false
	}
	return c.result, true
}

func (c *mockChannels) Subscribe(name string, cb boundary.Callback) (func(), error) {
	if name == c.failOn {
		return nil, errors.New("unknown channel")
	}
	c.mu.Lock()
	c.subs[name] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, name)
		c.mu.Unlock()
	}, nil
}

func (c *mockChannels) publish(name string, v any) {
	c.mu.Lock()
	cb := c.subs[name]
	c.mu.Unlock()
	if cb != nil {
		cb(relay.NewMessage(v))
	}
}

func newTestModel(t *testing.T, ch *mockChannels, opts ...Option) *Model {
	t.Helper()
	m, err := New(context.Background(), ch, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// drain feeds queued channel messages into the model.
func drain(m *Model) {
	if batch := m.queue.take(); len(batch) > 0 {
		m.Update(batch)
	}
}

func TestNew_SubscribesToOutboundChannels(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch)

	if len(ch.subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(ch.subs))
	}
	m.Close()
	if len(ch.subs) != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", len(ch.subs))
	}
}

func TestNew_SubscribeError(t *testing.T) {
	ch := newMockChannels()
	ch.failOn = "worker-status"

	if _, err := New(context.Background(), ch); err == nil {
		t.Fatal("New() should fail when a subscription is rejected")
	}
	if len(ch.subs) != 0 {
		t.Errorf("partial subscriptions not released: %d left", len(ch.subs))
	}
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "bare command",
			input: "get_status",
			want:  `{"command":"get_status","id":1}`,
		},
		{
			name:  "command with args",
			input: `add_torrent_file {"filepath":"/tmp/a.torrent"}`,
			want:  `{"args":{"filepath":"/tmp/a.torrent"},"command":"add_torrent_file","id":1}`,
		},
		{
			name:  "raw json",
			input: `{"id":"x","command":"pause","args":{"hash":"abc"}}`,
			want:  `{"args":{"hash":"abc"},"command":"pause","id":"x"}`,
		},
		{
			name:    "bad json",
			input:   `{"id":`,
			wantErr: "invalid JSON",
		},
		{
			name:    "bad args",
			input:   `add_torrent_file {nope}`,
			wantErr: "invalid args for add_torrent_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newMockChannels()
			m := newTestModel(t, ch)

			typeText(m, tt.input)
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})

			if m.input.Value() != "" {
				t.Errorf("input not cleared: %q", m.input.Value())
			}
			if tt.wantErr != "" {
				if len(ch.dispatched) != 0 {
					t.Errorf("dispatched %d messages on error", len(ch.dispatched))
				}
				lines := m.Lines()
				if len(lines) == 0 || !strings.Contains(lines[len(lines)-1], tt.wantErr) {
					t.Errorf("lines = %q, want error containing %q", lines, tt.wantErr)
				}
				return
			}

			if len(ch.dispatched) != 1 {
				t.Fatalf("dispatched %d messages, want 1", len(ch.dispatched))
			}
			got := ch.dispatched[0]
			if got.name != "to-worker" {
				t.Errorf("channel = %q, want to-worker", got.name)
			}
			if got.payload.String() != tt.want {
				t.Errorf("payload = %s, want %s", got.payload, tt.want)
			}
		})
	}
}

func TestSubmit_IDsIncrement(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch)

	for _, cmd := range []string{"a", "b"} {
		typeText(m, cmd)
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	}
	if got := ch.dispatched[1].payload.String(); got != `{"command":"b","id":2}` {
		t.Errorf("second payload = %s", got)
	}
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch)

	typeText(m, "   ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(ch.dispatched) != 0 {
		t.Errorf("dispatched %d messages for blank input", len(ch.dispatched))
	}
}

func TestReceive(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch)

	ch.publish("worker-status", map[string]any{"state": "running", "run_id": "r1"})
	ch.publish("worker-data", map[string]any{"id": 1, "data": []any{}})
	ch.publish("worker-status", map[string]any{"state": "died", "error": "exited with status 3"})
	drain(m)

	lines := m.Lines()
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), lines)
	}
	if lines[1] != `{"data":[],"id":1}` {
		t.Errorf("data line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "exited with status 3") {
		t.Errorf("status line = %q", lines[2])
	}
	if m.State() != "died" {
		t.Errorf("State() = %q, want died", m.State())
	}
	if !strings.Contains(m.View(), "died") {
		t.Error("View() does not show the worker state")
	}
}

func TestReceive_StatusSurvivesDataFlood(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch, WithMaxLines(1000))

	ch.publish("worker-status", map[string]any{"state": "running"})
	for i := 0; i < 300; i++ {
		ch.publish("worker-data", map[string]any{"id": i})
	}
	ch.publish("worker-status", map[string]any{"state": "died", "error": "exited with status 3"})

	msg := m.waitForMessage()()
	batch, ok := msg.(incomingBatch)
	if !ok {
		t.Fatalf("waitForMessage() = %T, want incomingBatch", msg)
	}
	m.Update(batch)

	if m.State() != "died" {
		t.Errorf("State() = %q, want died after a data flood", m.State())
	}
	lines := m.Lines()
	if want := 1 + incomingBuffer + 1 + 1; len(lines) != want {
		t.Fatalf("lines = %d, want %d", len(lines), want)
	}
	marker := lines[len(lines)-2]
	if !strings.Contains(marker, "44 worker-data records dropped") {
		t.Errorf("overflow line = %q, want 44 dropped records reported", marker)
	}
	if !strings.Contains(lines[len(lines)-1], "exited with status 3") {
		t.Errorf("last line = %q, want the died status", lines[len(lines)-1])
	}

	// The queue is empty again and accepts a full buffer.
	ch.publish("worker-data", map[string]any{"id": "late"})
	drain(m)
	if last := m.Lines()[len(m.Lines())-1]; last != `{"id":"late"}` {
		t.Errorf("last line = %q after the queue drained", last)
	}
}

func TestMaxLines(t *testing.T) {
	ch := newMockChannels()
	m := newTestModel(t, ch, WithMaxLines(3))

	for i := 0; i < 10; i++ {
		m.Update(incomingBatch{{channel: "worker-data", msg: relay.NewMessage(i)}})
	}
	lines := m.Lines()
	if len(lines) != 3 || lines[0] != "7" || lines[2] != "9" {
		t.Errorf("lines = %q, want [7 8 9]", lines)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.Lines()) != 0 {
		t.Errorf("ctrl+l left %d lines", len(m.Lines()))
	}
}

func TestPickers(t *testing.T) {
	tests := []struct {
		name      string
		key       tea.KeyType
		channel   string
		result    dialog.Result
		wantInput string
	}{
		{
			name:    "directory cancelled",
			key:     tea.KeyCtrlD,
			channel: "select-directory",
			result:  dialog.Cancelled(),
		},
		{
			name:    "directory selected",
			key:     tea.KeyCtrlD,
			channel: "select-directory",
			result:  dialog.Result{Path: "/downloads"},
		},
		{
			name:      "torrent selected prefills add_torrent_file",
			key:       tea.KeyCtrlO,
			channel:   "select-torrent-file",
			result:    dialog.Result{Path: "/tmp/ubuntu.torrent"},
			wantInput: `add_torrent_file {"filepath":"/tmp/ubuntu.torrent"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newMockChannels()
			ch.result = tt.result
			m := newTestModel(t, ch)

			_, cmd := m.Update(tea.KeyMsg{Type: tt.key})
			if cmd == nil {
				t.Fatal("picker key returned no command")
			}
			m.Update(cmd())

			if len(ch.dispatched) != 1 || ch.dispatched[0].name != tt.channel {
				t.Fatalf("dispatched = %v, want one on %s", ch.dispatched, tt.channel)
			}
			last := m.Lines()[len(m.Lines())-1]
			if tt.result.Cancelled && !strings.Contains(last, "cancelled") {
				t.Errorf("last line = %q, want cancelled", last)
			}
			if !tt.result.Cancelled && !strings.Contains(last, tt.result.Path) {
				t.Errorf("last line = %q, want path %q", last, tt.result.Path)
			}
			if m.input.Value() != tt.wantInput {
				t.Errorf("input = %q, want %q", m.input.Value(), tt.wantInput)
			}
		})
	}
}

func TestRestart(t *testing.T) {
	ch := newMockChannels()
	var calls int
	m := newTestModel(t, ch, WithRestart(func(context.Context) error {
		calls++
		return errors.New("spawn failed")
	}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("ctrl+r returned no command")
	}
	m.Update(cmd())

	if calls != 1 {
		t.Errorf("restart calls = %d, want 1", calls)
	}
	last := m.Lines()[len(m.Lines())-1]
	if !strings.Contains(last, "restart failed: spawn failed") {
		t.Errorf("last line = %q", last)
	}
}

func TestRestart_Unbound(t *testing.T) {
	m := newTestModel(t, newMockChannels())
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR}); cmd != nil {
		t.Error("ctrl+r without a restart func should do nothing")
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, newMockChannels())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc should quit")
	}
	if m.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}

func TestWaitForMessage_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, err := New(ctx, newMockChannels())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	cancel()
	if _, ok := m.waitForMessage()().(tea.QuitMsg); !ok {
		t.Error("waitForMessage should quit once the context is done")
	}
}
