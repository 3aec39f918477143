package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Observers (dashboards, ws_listen) follow the monitor live:
//   - On connect a "state_init" message carries a StateSnapshot produced by
//     the reducer on the daemon loop.
//   - Afterwards every reducer broadcast is forwarded as its own message type:
//     state_changed, spin, gesture_aborted, command_fired.
//
// DaemonState never leaves the daemon goroutine; clients only see snapshots
// and broadcasts. Clients that cannot keep up are disconnected.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// ============================================================================

// wsStateChangedData is the `data` payload for "state_changed".
type wsStateChangedData struct {
	State    string     `json:"state"`
	Reason   string     `json:"reason"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// wsSpinData is the `data` payload for "spin".
type wsSpinData struct {
	Direction string    `json:"direction"`
	Count     int       `json:"count"`
	Spinner   float64   `json:"spinner"`
	Deadline  time.Time `json:"deadline"`
}

// wsGestureAbortedData is the `data` payload for "gesture_aborted".
type wsGestureAbortedData struct {
	Reason  string  `json:"reason"`
	Spinner float64 `json:"spinner"`
}

// wsCommandFiredData is the `data` payload for "command_fired".
type wsCommandFiredData struct {
	Direction string `json:"direction"`
	Count     int    `json:"count"`
	Command   string `json:"command"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialized frames out to every registered client.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				if !c.trySend(msg) {
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a serialized frame. It drops the frame when the
// hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// trySend queues msg without blocking. It reports false when the client is
// closed or its queue is full.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close closes the connection and signals writePump. Safe to call repeatedly.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
	close(c.send)
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws pump exiting (close)", "pump", pump, "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws pump exiting", "pump", pump, "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings. It exits on write
// error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed and
// disconnects are noticed, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handlers
// ============================================================================

// Server serves the state websocket and the JSON snapshot endpoint.
type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshots are requested through the daemon loop.
	queue *eventQueue
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the state server. Call Register on a mux, start
// Hub().Run and RunBroadcaster.
func NewServer(logger *slog.Logger, queue *eventQueue, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		queue:  queue,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register installs /ws/state and /api/state on mux.
func (s *Server) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/ws/state", s.handleStateWS)
	mux.HandleFunc("/api/state", s.handleStateAPI)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// The pumps outlive the handler; net/http cancels r.Context() on return.
	go client.writePump()
	go client.readPump()

	snap, err := s.queue.Snapshot(r.Context())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	msg, err := marshalEnvelope("state_init", time.Time{}, snap)
	if err != nil {
		s.logger.Warn("ws snapshot marshal failed", "error", err)
		return
	}

	if !client.trySend(msg) {
		s.hub.unregister <- client
	}
}

// handleStateAPI returns the current StateSnapshot as JSON.
func (s *Server) handleStateAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.queue.Snapshot(r.Context())
	if err != nil {
		s.logger.Warn("state snapshot request failed", "error", err)
		http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Debug("state response write failed", "error", err)
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster forwards reducer broadcasts to all hub clients until ctx is
// canceled or src is closed.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			msg, err := marshalEnvelope(ev.Type, ev.At, ev.Data)
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastStateChanged:
		data := wsStateChangedData{State: ev.State, Reason: ev.Reason}
		if !ev.Deadline.IsZero() {
			d := ev.Deadline
			data.Deadline = &d
		}
		return wsOutboundEvent{Type: "state_changed", Data: data, At: ev.At}, true

	case BroadcastSpin:
		return wsOutboundEvent{
			Type: "spin",
			Data: wsSpinData{
				Direction: ev.Direction.String(),
				Count:     ev.Count,
				Spinner:   ev.Spinner,
				Deadline:  ev.Deadline,
			},
			At: ev.At,
		}, true

	case BroadcastGestureAborted:
		return wsOutboundEvent{
			Type: "gesture_aborted",
			Data: wsGestureAbortedData{Reason: ev.Reason.String(), Spinner: ev.Spinner},
			At:   ev.At,
		}, true

	case BroadcastCommandFired:
		return wsOutboundEvent{
			Type: "command_fired",
			Data: wsCommandFiredData{
				Direction: ev.Direction.String(),
				Count:     ev.Count,
				Command:   ev.Command,
			},
			At: ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
