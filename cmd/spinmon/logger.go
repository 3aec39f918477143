package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// setupLogger creates a text slog logger on stdout.
func setupLogger(level LogLevel) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level LogLevel) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return slog.New(handler)
}

// logBroadcast turns reducer broadcasts into console diagnostics.
func logBroadcast(logger *slog.Logger, b StateBroadcast) {
	switch ev := b.(type) {
	case BroadcastStateChanged:
		if ev.State == (Armed{}).Name() {
			logger.Info("armed", "reason", ev.Reason, "deadline", ev.Deadline.Format("15:04:05.000"))
		} else {
			logger.Info("idle", "reason", ev.Reason)
		}

	case BroadcastSpin:
		logger.Info("spin", "direction", ev.Direction, "count", ev.Count, "spinner", fmt.Sprintf("%.2f", ev.Spinner))

	case BroadcastGestureAborted:
		if ev.Reason == OutcomeReversalInvalidated {
			logger.Info("gesture aborted by reversal", "spinner", fmt.Sprintf("%.2f", ev.Spinner))
		} else {
			logger.Debug("gesture dropped", "reason", ev.Reason, "spinner", fmt.Sprintf("%.2f", ev.Spinner))
		}

	case BroadcastCommandFired:
		logger.Info("sequence complete", "direction", ev.Direction, "count", ev.Count, "command", ev.Command)
	}
}
