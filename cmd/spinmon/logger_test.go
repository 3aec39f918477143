package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LogLevelError,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"info":    LogLevelInfo,
		"debug":   LogLevelDebug,
	} {
		got, err := parseLogLevel(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}

	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLogBroadcast(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, LogLevelInfo)
	at := time.Unix(1000, 0)

	logBroadcast(logger, BroadcastStateChanged{State: "armed", Reason: "key", Deadline: at.Add(4 * time.Second), At: at})
	logBroadcast(logger, BroadcastSpin{Direction: SpinCW, Count: 1, Spinner: 1.02, At: at})
	logBroadcast(logger, BroadcastGestureAborted{Reason: OutcomeJumpInvalidated, At: at})
	logBroadcast(logger, BroadcastGestureAborted{Reason: OutcomeReversalInvalidated, Spinner: -0.1, At: at})
	logBroadcast(logger, BroadcastCommandFired{Direction: SpinCCW, Count: 2, Command: "echo off", At: at})

	out := buf.String()
	for _, want := range []string{
		"msg=armed reason=key",
		"msg=spin direction=cw count=1 spinner=1.02",
		`msg="gesture aborted by reversal" spinner=-0.10`,
		`msg="sequence complete" direction=ccw count=2 command="echo off"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "gesture dropped") {
		t.Fatalf("jump drops are debug-level:\n%s", out)
	}
}
