package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
//
// It is populated from command-line flags only and fixed for the lifetime of
// the process. The yaml tags describe the -print-config output.
type Config struct {
	Devices    DevicesConfig   `yaml:"devices"`
	Gesture    GestureFlags    `yaml:"gesture"`
	Activation ActivationFlags `yaml:"activation"`
	Commands   CommandsConfig  `yaml:"commands"`
	IPC        IPCConfig       `yaml:"ipc"`
	HTTP       HTTPConfig      `yaml:"http"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type DevicesConfig struct {
	Keyboard string `yaml:"keyboard"`
	Touchpad string `yaml:"touchpad"`
	Grab     bool   `yaml:"grab"`
	WaitMS   int    `yaml:"wait_ms"` // 0 disables waiting for missing device nodes
}

type GestureFlags struct {
	CenterX   int `yaml:"center_x"`
	CenterY   int `yaml:"center_y"`
	Radius    int `yaml:"radius"`
	TimeoutMS int `yaml:"timeout_ms"`
	MaxJump   int `yaml:"max_jump"`
}

type ActivationFlags struct {
	Keycode            int `yaml:"keycode"`
	CWSpinsRequired    int `yaml:"cw_spins_required"`
	CCWSpinsRequired   int `yaml:"ccw_spins_required"`
	AfterButtonpressMS int `yaml:"after_buttonpress_ms"`
	AfterSpinMS        int `yaml:"after_spin_ms"`
	AfterSuccessMS     int `yaml:"after_successful_cw_sequence_ms"`
	PollIntervalMS     int `yaml:"poll_interval_ms"`
}

type CommandsConfig struct {
	CW        string `yaml:"cw"`
	CCW       string `yaml:"ccw"`
	KeepGoing bool   `yaml:"keep_going_on_error"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the state websocket
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Devices: DevicesConfig{
			Keyboard: defaultKeyboardDevice,
			Touchpad: defaultTouchDevice,
		},
		Gesture: GestureFlags{
			CenterX:   defaultCenterX,
			CenterY:   defaultCenterY,
			Radius:    defaultRadius,
			TimeoutMS: defaultGestureTimeoutMS,
			MaxJump:   defaultMaxJump,
		},
		Activation: ActivationFlags{
			Keycode:            defaultKeycode,
			CWSpinsRequired:    defaultCWSpinsRequired,
			CCWSpinsRequired:   defaultCCWSpinsRequired,
			AfterButtonpressMS: defaultAfterButtonpressMS,
			AfterSpinMS:        defaultAfterSpinMS,
			AfterSuccessMS:     defaultAfterSuccessMS,
			PollIntervalMS:     defaultPollInterval,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	if c.Devices.Keyboard == "" {
		return errors.New("keyboard device must not be empty")
	}
	if c.Devices.Touchpad == "" {
		return errors.New("touchpad device must not be empty")
	}
	if c.Devices.WaitMS < 0 {
		return errors.New("wait-devices-ms must be >= 0")
	}

	if c.Gesture.Radius <= 0 {
		return errors.New("radius must be > 0")
	}
	if c.Gesture.TimeoutMS <= 0 {
		return errors.New("gesture-timeout-ms must be > 0")
	}
	if c.Gesture.MaxJump <= 0 {
		return errors.New("max-jump must be > 0")
	}

	if c.Activation.Keycode <= 0 || c.Activation.Keycode > 0x2ff {
		return fmt.Errorf("keycode must be between 1 and %d", 0x2ff)
	}
	if c.Activation.CWSpinsRequired < 1 {
		return errors.New("cw-spins must be >= 1")
	}
	if c.Activation.CCWSpinsRequired < 1 {
		return errors.New("ccw-spins must be >= 1")
	}
	if c.Activation.AfterButtonpressMS < 0 || c.Activation.AfterSpinMS < 0 || c.Activation.AfterSuccessMS < 0 {
		return errors.New("attention windows must be >= 0")
	}
	if c.Activation.PollIntervalMS <= 0 || c.Activation.PollIntervalMS > 1000 {
		return errors.New("poll-interval-ms must be between 1 and 1000")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// EffectiveLogLevel folds the debug toggle into the log level.
func (c *Config) EffectiveLogLevel() LogLevel {
	if c.Logging.Debug {
		return LogLevelDebug
	}
	level, err := parseLogLevel(c.Logging.Level)
	if err != nil {
		return LogLevelInfo
	}
	return level
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ToActivationConfig converts flag values into the reducer config.
func (c *Config) ToActivationConfig() ActivationConfig {
	return ActivationConfig{
		Gesture: GestureConfig{
			Zone: Zone{
				Center: Point{X: float64(c.Gesture.CenterX), Y: float64(c.Gesture.CenterY)},
				Radius: float64(c.Gesture.Radius),
			},
			Timeout: ms(c.Gesture.TimeoutMS),
			MaxJump: float64(c.Gesture.MaxJump),
		},
		CWSpinsRequired:            c.Activation.CWSpinsRequired,
		CCWSpinsRequired:           c.Activation.CCWSpinsRequired,
		AfterButtonpressAttention:  ms(c.Activation.AfterButtonpressMS),
		AfterSpinAttention:         ms(c.Activation.AfterSpinMS),
		AfterSuccessfulCWAttention: ms(c.Activation.AfterSuccessMS),
		CWCommand:                  c.Commands.CW,
		CCWCommand:                 c.Commands.CCW,
	}
}

// ToDaemonConfig converts flag values into the daemon loop config.
func (c *Config) ToDaemonConfig() daemonConfig {
	return daemonConfig{
		Activation:              c.ToActivationConfig(),
		Keycode:                 uint16(c.Activation.Keycode),
		PollInterval:            ms(c.Activation.PollIntervalMS),
		KeepGoingOnCommandError: c.Commands.KeepGoing,
	}
}

// WriteYAML writes the effective configuration (for -print-config).
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config yaml: %w", err)
	}
	return enc.Close()
}
