package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/torrpeddo/torrpeddo/internal/boundary"
	"github.com/torrpeddo/torrpeddo/internal/dialog"
	"github.com/torrpeddo/torrpeddo/internal/errors"
	"github.com/torrpeddo/torrpeddo/internal/logging"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
	"github.com/torrpeddo/torrpeddo/internal/relay"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 4 * 1024 * 1024
)

// Boundary is the part of the capability boundary the gateway drives.
type Boundary interface {
	Dispatch(ctx context.Context, name string, payload relay.Message) (dialog.Result, bool)
	Subscribe(name string, cb boundary.Callback) (func(), error)
}

// Config holds the gateway settings.
type Config struct {
	Addr           string
	StaticDir      string
	AllowedOrigins []string
	SendQueue      int
	Metrics        bool
}

// client is one connected websocket.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server is the loopback HTTP and websocket front end of the boundary.
type Server struct {
	cfg      Config
	boundary Boundary
	logger   *logging.Logger
	metrics  *metrics.Metrics
	token    string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	unsubs   []func()
	httpSrv  *http.Server
	listener net.Listener
	serveErr chan error
}

// New creates a Server and subscribes it to every outbound channel of b.
func New(b Boundary, cfg Config, opts ...Option) (*Server, error) {
	if b == nil {
		panic("gateway: Boundary must not be nil")
	}
	if cfg.SendQueue < 1 {
		cfg.SendQueue = 256
	}

	s := &Server{
		cfg:      cfg,
		boundary: b,
		logger:   logging.NopLogger(),
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	s.logger = s.logger.WithComponent("gateway")
	if s.token == "" {
		s.token = uuid.NewString()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	for _, ch := range boundary.OutboundChannels() {
		name := ch.String()
		unsub, err := b.Subscribe(name, func(msg relay.Message) {
			s.broadcast(name, msg)
		})
		if err != nil {
			s.unsubscribeAll()
			return nil, fmt.Errorf("subscribe %s: %w", name, err)
		}
		s.unsubs = append(s.unsubs, unsub)
	}
	return s, nil
}

// Token returns the session token clients must present.
func (s *Server) Token() string {
	return s.token
}

// Handler returns the HTTP handler serving the UI, the websocket and,
// when enabled, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.cfg.Metrics && s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

// Start listens on Config.Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErr = make(chan error, 1)
	go func() {
		err := s.httpSrv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// URL returns the address a UI should open, token included.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s/?token=%s", s.Addr(), url.QueryEscape(s.token))
}

// Stop shuts the HTTP server down, disconnects every client and detaches
// from the boundary. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.unsubscribeAll()
	for _, c := range clients {
		s.removeClient(c, "server stopping")
	}

	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return <-s.serveErr
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) unsubscribeAll() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// checkOrigin accepts requests without an Origin header, same-origin
// requests, loopback origins and configured extra origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		s.logger.Warn("websocket rejected: bad token", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, s.cfg.SendQueue),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.metrics.ClientConnected()
	s.logger.Info("ui client connected", "remote", r.RemoteAddr)

	go s.writePump(c)
	go s.readPump(c)
}

// readPump dispatches inbound frames until the connection fails. Frames
// for the forwarding channel are dispatched inline so worker commands keep
// their order; host-native requests block on a dialog and run on their own
// goroutine.
func (s *Server) readPump(c *client) {
	defer s.removeClient(c, "read closed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		f, err := decodeFrame(data)
		if err != nil {
			s.logger.Debug("dropping malformed frame", "error", err, "bytes", len(data))
			continue
		}

		ch, known := boundary.ParseInbound(f.Channel)
		if !known || ch.Forwarding() {
			s.boundary.Dispatch(ctx, f.Channel, f.Payload)
			continue
		}

		go func(f Frame) {
			res, ok := s.boundary.Dispatch(ctx, f.Channel, f.Payload)
			if ok {
				s.reply(c, f, res)
			}
		}(f)
	}
}

func (s *Server) reply(c *client, req Frame, res dialog.Result) {
	data, err := encodeFrame(Frame{Channel: req.Channel, ID: req.ID, Payload: relay.NewMessage(res)})
	if err != nil {
		s.logger.Error("encode reply failed", "channel", req.Channel, "error", err)
		return
	}
	if !s.enqueue(c, data) {
		s.removeClient(c, "send queue full")
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast pushes one outbound message to every client.
func (s *Server) broadcast(channel string, msg relay.Message) {
	data, err := encodeFrame(Frame{Channel: channel, Payload: msg})
	if err != nil {
		s.logger.Error("encode frame failed", "channel", channel, "error", err)
		return
	}

	var slow []*client
	s.mu.RLock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.removeClient(c, "send queue full")
	}
}

// enqueue queues data for c. It returns false only when c's queue is full.
func (s *Server) enqueue(c *client, data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (s *Server) removeClient(c *client, reason string) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.mu.Unlock()

	s.metrics.ClientDisconnected()
	s.logger.Info("ui client disconnected", "reason", reason)
}
