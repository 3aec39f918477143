package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startIPC runs the IPC server on a temp socket and returns its path.
func startIPC(t *testing.T, queue *eventQueue) string {
	t.Helper()
	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "spinmon")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, sock, queue, newLogger(io.Discard, LogLevelError)) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Errorf("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, "socket not created")
	return sock
}

func TestIPC_ArmIsQueued(t *testing.T) {
	queue := newEventQueue(4, nil)
	sock := startIPC(t, queue)

	require.NoError(t, SendIPCEvent(sock, ArmRequested{Origin: "test"}))

	select {
	case ev := <-queue.ch:
		assert.Equal(t, ArmRequested{Origin: "test"}, ev)
	case <-time.After(time.Second):
		t.Fatal("event not queued")
	}
}

func TestIPC_Errors(t *testing.T) {
	queue := newEventQueue(1, nil)
	sock := startIPC(t, queue)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	roundTrip := func(line string) IPCResponse {
		t.Helper()
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		var resp IPCResponse
		require.NoError(t, json.NewDecoder(r).Decode(&resp))
		return resp
	}

	resp := roundTrip(`{"type":"volume_up"}`)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "unknown event type")

	assert.Equal(t, "ok", roundTrip(`{"type":"reset"}`).Status)

	// Queue holds one event; nothing drains it.
	resp = roundTrip(`{"type":"arm"}`)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "event queue full", resp.Error)
}

func TestIPC_Status(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newEventQueue(4, nil)
	go serveSnapshots(ctx, queue, StateSnapshot{State: "idle", CommandsFired: 2})
	sock := startIPC(t, queue)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"type":"status"}` + "\n"))
	require.NoError(t, err)

	var resp IPCResponse
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.State)
	assert.Equal(t, "idle", resp.State.State)
	assert.Equal(t, 2, resp.State.CommandsFired)
}

func TestSendIPCEvent_NoServer(t *testing.T) {
	err := SendIPCEvent(filepath.Join(t.TempDir(), "missing.sock"), ArmRequested{})
	assert.Error(t, err)
}
