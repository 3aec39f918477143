package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForDevices_DisabledReturnsImmediately(t *testing.T) {
	err := waitForDevices(context.Background(), []string{"/nonexistent/event0"}, 0, newLogger(io.Discard, LogLevelError))
	assert.NoError(t, err)
}

func TestWaitForDevices_AlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "event0")
	require.NoError(t, os.WriteFile(p, nil, 0o600))

	err := waitForDevices(context.Background(), []string{p}, time.Second, newLogger(io.Discard, LogLevelError))
	assert.NoError(t, err)
}

func TestWaitForDevices_CreatedLater(t *testing.T) {
	dir := t.TempDir()
	kb := filepath.Join(dir, "event0")
	touch := filepath.Join(dir, "event9")
	require.NoError(t, os.WriteFile(kb, nil, 0o600))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(touch, nil, 0o600)
	}()

	err := waitForDevices(context.Background(), []string{kb, touch}, 5*time.Second, newLogger(io.Discard, LogLevelError))
	assert.NoError(t, err)
}

func TestWaitForDevices_Timeout(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "event4")

	err := waitForDevices(context.Background(), []string{missing}, 50*time.Millisecond, newLogger(io.Discard, LogLevelError))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event4")
}

func TestWaitForDevices_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForDevices(ctx, []string{filepath.Join(t.TempDir(), "event1")}, time.Minute, newLogger(io.Discard, LogLevelError))
	assert.ErrorIs(t, err, context.Canceled)
}
