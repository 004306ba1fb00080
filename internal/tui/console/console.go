// Package console is a terminal client for the bridge. It plays the part
// of the UI context: everything it does goes through the capability
// boundary's named channels, the same way the renderer does over the
// gateway.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/torrpeddo/torrpeddo/internal/boundary"
	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/relay"
)

// Channels is the boundary surface the console drives.
type Channels interface {
	Dispatch(ctx context.Context, name string, payload relay.Message) (dialog.Result, bool)
	Subscribe(name string, cb boundary.Callback) (func(), error)
}

// RestartFunc restarts the worker. It is bound to an operator key, not to a
// boundary channel.
type RestartFunc func(ctx context.Context) error

const (
	defaultMaxLines = 500
	incomingBuffer  = 256
	headerHeight    = 1
	footerHeight    = 3
)

// incomingMsg is a message published on an outbound channel. An entry
// with dropped > 0 stands for that many worker-data records the console
// had no room for.
type incomingMsg struct {
	channel string
	msg     relay.Message
	dropped int
}

// incomingBatch is everything queued since the program last looked.
type incomingBatch []incomingMsg

// inbox queues channel traffic for the program. Status messages are always
// kept. At most incomingBuffer data records wait at a time; the rest are
// counted in place so the order of status changes is preserved.
type inbox struct {
	mu      sync.Mutex
	items   []incomingMsg
	pending int
	wake    chan struct{}
}

func newInbox() *inbox {
	return &inbox{wake: make(chan struct{}, 1)}
}

func (q *inbox) push(in incomingMsg) {
	q.mu.Lock()
	switch {
	case in.channel == boundary.OutboundWorkerStatus.String():
		q.items = append(q.items, in)
	case q.pending < incomingBuffer:
		q.items = append(q.items, in)
		q.pending++
	default:
		if n := len(q.items); n > 0 && q.items[n-1].dropped > 0 {
			q.items[n-1].dropped++
		} else {
			q.items = append(q.items, incomingMsg{channel: in.channel, dropped: 1})
		}
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *inbox) take() incomingBatch {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.pending = 0
	return items
}

// pickedMsg carries the result of a host-native picker request.
type pickedMsg struct {
	channel string
	result  dialog.Result
}

// restartedMsg reports the outcome of a restart.
type restartedMsg struct {
	err error
}

// Model is the bubbletea model of the console.
type Model struct {
	channels Channels
	restart  RestartFunc
	ctx      context.Context

	input    textinput.Model
	log      viewport.Model
	lines    []string
	maxLines int
	state    string
	nextID   int

	queue  *inbox
	unsubs []func()

	width    int
	height   int
	ready    bool
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithMaxLines bounds how many log lines are kept.
func WithMaxLines(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxLines = n
		}
	}
}

// WithRestart binds ctrl+r to fn.
func WithRestart(fn RestartFunc) Option {
	return func(m *Model) {
		m.restart = fn
	}
}

// New creates a console that subscribes to the worker-data and
// worker-status channels of ch. Call Close when the program ends.
func New(ctx context.Context, ch Channels, opts ...Option) (*Model, error) {
	ti := textinput.New()
	ti.Placeholder = `get_status  or  {"command":"add_torrent_file","args":{...}}`
	ti.Prompt = "> "
	ti.Focus()

	m := &Model{
		channels: ch,
		ctx:      ctx,
		input:    ti,
		log:      viewport.New(80, 20),
		maxLines: defaultMaxLines,
		state:    "idle",
		nextID:   1,
		queue:    newInbox(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, name := range []string{
		boundary.OutboundWorkerData.String(),
		boundary.OutboundWorkerStatus.String(),
	} {
		unsub, err := ch.Subscribe(name, m.forward(name))
		if err != nil {
			m.Close()
			return nil, err
		}
		m.unsubs = append(m.unsubs, unsub)
	}
	return m, nil
}

// forward returns a boundary callback that hands messages to the program.
// It never blocks the publisher.
func (m *Model) forward(channel string) boundary.Callback {
	return func(msg relay.Message) {
		m.queue.push(incomingMsg{channel: channel, msg: msg})
	}
}

// Close detaches the console from the boundary.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

// Init starts listening for channel messages.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForMessage())
}

func (m *Model) waitForMessage() tea.Cmd {
	queue, ctx := m.queue, m.ctx
	return func() tea.Msg {
		for {
			select {
			case <-queue.wake:
				if batch := queue.take(); len(batch) > 0 {
					return batch
				}
			case <-ctx.Done():
				return tea.Quit()
			}
		}
	}
}

// Update handles keys, window resizes and channel traffic.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case incomingBatch:
		for _, in := range msg {
			m.receive(in)
		}
		return m, m.waitForMessage()

	case pickedMsg:
		m.picked(msg)
		return m, nil

	case restartedMsg:
		if msg.err != nil {
			m.appendLine(errorStyle.Render("restart failed: " + msg.err.Error()))
		}
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return tea.Quit, true

	case tea.KeyEnter:
		m.submit()
		return nil, true

	case tea.KeyCtrlD:
		return m.pick(boundary.InboundSelectDirectory), true

	case tea.KeyCtrlO:
		return m.pick(boundary.InboundSelectTorrentFile), true

	case tea.KeyCtrlR:
		if m.restart == nil {
			return nil, true
		}
		m.appendLine(mutedStyle.Render("restarting worker..."))
		restart, ctx := m.restart, m.ctx
		return func() tea.Msg { return restartedMsg{err: restart(ctx)} }, true

	case tea.KeyCtrlL:
		m.lines = nil
		m.refresh()
		return nil, true

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return cmd, true
	}
	return nil, false
}

// submit sends the input line on to-worker.
func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	m.input.Reset()

	req, err := m.parseCommand(text)
	if err != nil {
		m.appendLine(errorStyle.Render(err.Error()))
		return
	}
	m.appendLine(mutedStyle.Render("→ " + req.String()))
	m.channels.Dispatch(m.ctx, boundary.InboundToWorker.String(), req)
}

// parseCommand accepts either a JSON value, sent as is, or
// "command [json-args]", which becomes {"id", "command", "args"}.
func (m *Model) parseCommand(text string) (relay.Message, error) {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		var msg relay.Message
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return relay.Message{}, fmt.Errorf("invalid JSON: %w", err)
		}
		return msg, nil
	}

	command, rest, _ := strings.Cut(text, " ")
	req := map[string]any{"id": m.nextID, "command": command}
	if rest = strings.TrimSpace(rest); rest != "" {
		var args relay.Message
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return relay.Message{}, fmt.Errorf("invalid args for %s: %w", command, err)
		}
		req["args"] = args
	}
	m.nextID++
	return relay.NewMessage(req), nil
}

func (m *Model) pick(ch boundary.Inbound) tea.Cmd {
	channels, ctx := m.channels, m.ctx
	name := ch.String()
	m.appendLine(mutedStyle.Render("waiting for " + name + "..."))
	return func() tea.Msg {
		res, _ := channels.Dispatch(ctx, name, relay.NewMessage(nil))
		return pickedMsg{channel: name, result: res}
	}
}

func (m *Model) picked(msg pickedMsg) {
	if msg.result.Cancelled {
		m.appendLine(mutedStyle.Render(msg.channel + ": cancelled"))
		return
	}
	m.appendLine(msg.channel + ": " + msg.result.Path)
	if msg.channel == boundary.InboundSelectTorrentFile.String() {
		args, _ := json.Marshal(map[string]string{"filepath": msg.result.Path})
		m.input.SetValue("add_torrent_file " + string(args))
		m.input.CursorEnd()
	}
}

func (m *Model) receive(in incomingMsg) {
	if in.dropped > 0 {
		m.appendLine(warningStyle.Render(fmt.Sprintf("%d %s records dropped, console fell behind", in.dropped, in.channel)))
		return
	}
	if in.channel != boundary.OutboundWorkerStatus.String() {
		m.appendLine(in.msg.String())
		return
	}

	status, _ := in.msg.Value().(map[string]any)
	if state, ok := status["state"].(string); ok {
		m.state = state
	}
	line := warningStyle.Render("worker " + m.state)
	if reason, ok := status["error"].(string); ok && reason != "" {
		line += errorStyle.Render(": " + reason)
	}
	m.appendLine(line)
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
	m.refresh()
}

func (m *Model) refresh() {
	atBottom := m.log.AtBottom()
	m.log.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.log.GotoBottom()
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.ready = true

	frame := logBox.GetHorizontalFrameSize()
	m.log.Width = max(width-frame, 10)
	m.log.Height = max(height-headerHeight-footerHeight-logBox.GetVerticalFrameSize(), 3)
	m.input.Width = max(width-len(m.input.Prompt)-1, 10)
	m.refresh()
}

// View renders the console.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	badge := statusBadge.Foreground(stateColor(m.state)).Render(m.state)
	header := lipgloss.JoinHorizontal(lipgloss.Left, titleStyle.Render("torrpeddo"), " worker ", badge)
	help := helpStyle.Render("enter send · ctrl+o torrent · ctrl+d directory · ctrl+r restart · ctrl+l clear · esc quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		logBox.Render(m.log.View()),
		m.input.View(),
		help,
	)
}

// Lines returns the current log lines.
func (m *Model) Lines() []string {
	return append([]string(nil), m.lines...)
}

// State returns the last worker state seen on worker-status.
func (m *Model) State() string {
	return m.state
}
