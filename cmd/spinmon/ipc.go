package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Lets local tools arm or reset the monitor without the activation key.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "arm"} or {"type": "reset", "data": {"origin": "..."}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//   - {"type": "status"} is answered with {"status": "ok", "state": {...}}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"

	State *StateSnapshot `json:"state,omitempty"` // set for "status" requests
}

// ipcStatusType is answered by the server itself rather than reduced as an event.
const ipcStatusType = "status"

// runIPCServer serves the Unix socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, queue *eventQueue, logger *slog.Logger) error {
	if queue == nil {
		return errors.New("IPC server needs an event queue")
	}

	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, queue, logger)
	}
}

func handleIPCConnection(ctx context.Context, conn net.Conn, queue *eventQueue, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "status", resp.Status, "error", err)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		if isStatusRequest(line) {
			snap, err := queue.Snapshot(ctx)
			if err != nil {
				reply(IPCResponse{Status: "error", Error: fmt.Sprintf("status: %v", err)})
				continue
			}
			reply(IPCResponse{Status: "ok", State: &snap})
			continue
		}

		// Payload events only; the daemon assigns timestamps via TimedEvent.
		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			reply(IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			continue
		}

		if !queue.TrySend(ev) {
			reply(IPCResponse{Status: "error", Error: "event queue full"})
			continue
		}
		reply(IPCResponse{Status: "ok"})
	}

	logger.Debug("IPC connection closed")
}

func isStatusRequest(line string) bool {
	var env EventEnvelope
	return json.Unmarshal([]byte(line), &env) == nil && env.Type == ipcStatusType
}

// ============================================================================
// IPC Client
// ============================================================================

// ipcDialTimeout bounds connect and round-trip time for SendIPCEvent.
const ipcDialTimeout = 2 * time.Second

// SendIPCEvent sends an event to the daemon via IPC and waits for the response.
func SendIPCEvent(socketPath string, ev Event) error {
	conn, err := net.DialTimeout("unix", socketPath, ipcDialTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcDialTimeout))

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
