package main

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, KEY_SPACE, cfg.Activation.Keycode)
	assert.Equal(t, 2, cfg.Activation.CWSpinsRequired)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty keyboard", func(c *Config) { c.Devices.Keyboard = "" }, "keyboard"},
		{"empty touchpad", func(c *Config) { c.Devices.Touchpad = "" }, "touchpad"},
		{"negative wait", func(c *Config) { c.Devices.WaitMS = -1 }, "wait-devices-ms"},
		{"zero radius", func(c *Config) { c.Gesture.Radius = 0 }, "radius"},
		{"zero gesture timeout", func(c *Config) { c.Gesture.TimeoutMS = 0 }, "gesture-timeout-ms"},
		{"zero jump", func(c *Config) { c.Gesture.MaxJump = 0 }, "max-jump"},
		{"bad keycode", func(c *Config) { c.Activation.Keycode = 0 }, "keycode"},
		{"zero cw spins", func(c *Config) { c.Activation.CWSpinsRequired = 0 }, "cw-spins"},
		{"zero ccw spins", func(c *Config) { c.Activation.CCWSpinsRequired = 0 }, "ccw-spins"},
		{"negative window", func(c *Config) { c.Activation.AfterSpinMS = -5 }, "attention windows"},
		{"poll interval too large", func(c *Config) { c.Activation.PollIntervalMS = 5000 }, "poll-interval-ms"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestConfig_EffectiveLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LogLevelInfo, cfg.EffectiveLogLevel())

	cfg.Logging.Level = "warn"
	assert.Equal(t, LogLevelWarn, cfg.EffectiveLogLevel())

	cfg.Logging.Debug = true
	assert.Equal(t, LogLevelDebug, cfg.EffectiveLogLevel())
}

func TestConfig_ToDaemonConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gesture.CenterX = 100
	cfg.Gesture.CenterY = 50
	cfg.Commands.CW = "on"
	cfg.Commands.CCW = "off"
	cfg.Commands.KeepGoing = true

	dc := cfg.ToDaemonConfig()

	assert.Equal(t, Point{X: 100, Y: 50}, dc.Activation.Gesture.Zone.Center)
	assert.Equal(t, 300.0, dc.Activation.Gesture.Zone.Radius)
	assert.Equal(t, 50.0, dc.Activation.Gesture.MaxJump)
	assert.Equal(t, time.Second, dc.Activation.Gesture.Timeout)
	assert.Equal(t, 4*time.Second, dc.Activation.AfterButtonpressAttention)
	assert.Equal(t, 60*time.Second, dc.Activation.AfterSuccessfulCWAttention)
	assert.Equal(t, "on", dc.Activation.CWCommand)
	assert.Equal(t, "off", dc.Activation.CCWCommand)
	assert.Equal(t, uint16(KEY_SPACE), dc.Keycode)
	assert.Equal(t, 50*time.Millisecond, dc.PollInterval)
	assert.True(t, dc.KeepGoingOnCommandError)
}

func TestBindFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	bindFlags(fs, &cfg)

	err := fs.Parse([]string{
		"-keyboard", "/dev/input/event3",
		"-touchpad", "/dev/input/event7",
		"-center-x", "512",
		"-cw-spins", "3",
		"-cw-command", "systemctl suspend",
		"-http-addr", "127.0.0.1:8090",
		"-debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/dev/input/event3", cfg.Devices.Keyboard)
	assert.Equal(t, "/dev/input/event7", cfg.Devices.Touchpad)
	assert.Equal(t, 512, cfg.Gesture.CenterX)
	assert.Equal(t, defaultCenterY, cfg.Gesture.CenterY)
	assert.Equal(t, 3, cfg.Activation.CWSpinsRequired)
	assert.Equal(t, "systemctl suspend", cfg.Commands.CW)
	assert.Equal(t, "127.0.0.1:8090", cfg.HTTP.Addr)
	assert.True(t, cfg.Logging.Debug)
}

func TestConfig_WriteYAML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commands.CW = "echo on"

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "cw_spins_required: 2")
	assert.Contains(t, buf.String(), "after_successful_cw_sequence_ms: 60000")

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, cfg, back)
}
