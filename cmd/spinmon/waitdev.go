package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// waitForDevices blocks until every path exists, timeout elapses, or ctx is
// done. udev may create device nodes after the daemon starts at boot.
// A non-positive timeout returns immediately; opening will then report the
// missing node.
func waitForDevices(ctx context.Context, paths []string, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	missing := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		missing[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	// Check after the watches are in place so a node created in between is not missed.
	for p := range missing {
		if _, err := os.Stat(p); err == nil {
			delete(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	logger.Info("waiting for devices", "paths", missingList(missing), "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return fmt.Errorf("timed out after %s waiting for %s", timeout, strings.Join(missingList(missing), ", "))

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("device watcher closed")
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if _, want := missing[event.Name]; !want {
				continue
			}
			delete(missing, event.Name)
			logger.Debug("device appeared", "path", event.Name)
			if len(missing) == 0 {
				return nil
			}

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("device watcher closed")
			}
			return fmt.Errorf("device watcher: %w", err)
		}
	}
}

func missingList(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
