package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests construct Clients with a nil websocket.Conn; the hub never
// writes to the connection itself and close() guards against nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     hub.logger,
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"spin","data":{"direction":"cw","count":1}}`)

	// Not BroadcastBytes: it may drop when the queue is momentarily full.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("expected all clients dropped on shutdown, got %d", n)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)
	go hub.Run(ctx)

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Simulate a stuck client.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"state_changed","data":{"state":"idle"}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if slow.trySend([]byte("late")) {
		t.Fatalf("closed client must refuse sends")
	}
}

func TestConvertBroadcast(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := at.Add(4 * time.Second)

	cases := []struct {
		in       StateBroadcast
		wantType string
		wantJSON string
	}{
		{
			BroadcastStateChanged{State: "armed", Reason: "key", Deadline: deadline, At: at},
			"state_changed",
			`{"state":"armed","reason":"key","deadline":"2024-03-01T12:00:04Z"}`,
		},
		{
			BroadcastStateChanged{State: "idle", Reason: "deadline", At: at},
			"state_changed",
			`{"state":"idle","reason":"deadline"}`,
		},
		{
			BroadcastSpin{Direction: SpinCCW, Count: 2, Spinner: -2.5, Deadline: deadline, At: at},
			"spin",
			`{"direction":"ccw","count":2,"spinner":-2.5,"deadline":"2024-03-01T12:00:04Z"}`,
		},
		{
			BroadcastGestureAborted{Reason: OutcomeReversalInvalidated, Spinner: 0.25, At: at},
			"gesture_aborted",
			`{"reason":"reversal","spinner":0.25}`,
		},
		{
			BroadcastCommandFired{Direction: SpinCW, Count: 2, Command: "echo on", At: at},
			"command_fired",
			`{"direction":"cw","count":2,"command":"echo on"}`,
		},
	}
	for _, tc := range cases {
		ev, ok := convertBroadcast(tc.in)
		if !ok {
			t.Fatalf("%T: not converted", tc.in)
		}
		if ev.Type != tc.wantType {
			t.Fatalf("%T: type %q, want %q", tc.in, ev.Type, tc.wantType)
		}
		if !ev.At.Equal(at) {
			t.Fatalf("%T: at %v, want %v", tc.in, ev.At, at)
		}
		data, err := json.Marshal(ev.Data)
		if err != nil {
			t.Fatalf("%T: marshal: %v", tc.in, err)
		}
		if string(data) != tc.wantJSON {
			t.Fatalf("%T: data %s, want %s", tc.in, data, tc.wantJSON)
		}
	}
}

func TestRunBroadcaster_WrapsInEnvelope(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)
	go hub.Run(ctx)
	c := newTestClient(hub, "c", 4)
	registerAndWait(t, hub, c)

	src := make(chan StateBroadcast, 1)
	go RunBroadcaster(ctx, hub, src, hub.logger)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src <- BroadcastCommandFired{Direction: SpinCW, Count: 2, Command: "x", At: at}

	select {
	case got := <-c.send:
		want := `{"type":"command_fired","ts":"2024-03-01T12:00:00Z","data":{"direction":"cw","count":2,"command":"x"}}`
		if string(got) != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}
}

// serveSnapshots answers RequestStateSnapshot events like the daemon loop.
func serveSnapshots(ctx context.Context, q *eventQueue, snap StateSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.ch:
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- snap
			}
		}
	}
}

func TestServer_StateInitAndAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newEventQueue(4, nil)
	go serveSnapshots(ctx, queue, StateSnapshot{State: "armed", Activations: 3})

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), queue, ServerConfig{})
	go srv.Hub().Run(ctx)

	mux := http.NewServeMux()
	srv.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// JSON endpoint.
	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	var snap StateSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if snap.State != "armed" || snap.Activations != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Websocket: first frame is state_init.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Type string        `json:"type"`
		Data StateSnapshot `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "state_init" || env.Data.State != "armed" {
		t.Fatalf("unexpected first frame: %s", msg)
	}

	// Later broadcasts reach the same connection once the hub has registered it.
	waitUntil(t, 500*time.Millisecond, func() bool { return srv.Hub().ClientCount() == 1 }, "client not registered in time")
	srv.Hub().BroadcastBytes([]byte(`{"type":"spin"}`))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"type":"spin"}` {
		t.Fatalf("unexpected frame: %s", msg)
	}
}

func TestServer_APIRejectsPost(t *testing.T) {
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), newEventQueue(1, nil), ServerConfig{})
	rec := httptest.NewRecorder()
	srv.handleStateAPI(rec, httptest.NewRequest(http.MethodPost, "/api/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
