package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// ============================================================================
// spinctl - Command-line IPC Client
// ============================================================================
// Sends requests to the spinmon daemon over its Unix socket.
//
// Usage:
//   spinctl arm
//   spinctl reset
//   spinctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/spinmon.sock)
// ============================================================================

const (
	defaultSocket = "/tmp/spinmon.sock"
	origin        = "spinctl"
	timeout       = 2 * time.Second
)

// request mirrors the daemon's event envelope.
type request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type originData struct {
	Origin string `json:"origin"`
}

// response mirrors the daemon's IPCResponse. State is kept raw so spinctl
// does not depend on the snapshot layout.
type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocket

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) != 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var req request
	switch args[0] {
	case "arm":
		req = newRequest("arm")
	case "reset":
		req = newRequest("reset")
	case "status":
		req = request{Type: "status"}
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	resp, err := roundTrip(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.State) > 0 {
		var pretty any
		if err := json.Unmarshal(resp.State, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Println(string(resp.State))
		return
	}
	fmt.Println("ok")
}

func newRequest(typ string) request {
	data, _ := json.Marshal(originData{Origin: origin})
	return request{Type: typ, Data: data}
}

// roundTrip sends one line-delimited request and decodes one response.
func roundTrip(socketPath string, req request) (response, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `spinctl - Control the spinmon daemon via IPC

Usage:
  spinctl [options] <command>

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  arm             Open an attention window as if the activation key was pressed
  reset           Return to idle, dropping any gesture in progress
  status          Print the current state snapshot
  help            Show this help message

Examples:
  spinctl arm
  spinctl -socket /run/spinmon.sock status
`, defaultSocket)
}
