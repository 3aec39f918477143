package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("spinmon v%s\n", version)
	fmt.Println("Touch spin gesture monitor: run commands when a finger circles the touchpad")
}

func printUsage() {
	def := DefaultConfig()

	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  spinmon [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Waits for an activation key on a keyboard input device. Once armed, it")
	fmt.Println("  watches a touch device for full turns around a configured center and")
	fmt.Println("  runs a shell command after enough clockwise or counterclockwise spins.")
	fmt.Println()
	fmt.Println("DEVICES:")
	fmt.Println("  -keyboard string")
	fmt.Printf("        Input device carrying the activation key (default %q)\n", def.Devices.Keyboard)
	fmt.Println("  -touchpad string")
	fmt.Printf("        Touch input device (default %q)\n", def.Devices.Touchpad)
	fmt.Println("  -grab")
	fmt.Println("        Grab the touch device exclusively (EVIOCGRAB)")
	fmt.Println("  -wait-devices-ms int")
	fmt.Println("        Wait up to this long for missing device nodes to appear (default 0, disabled)")
	fmt.Println()
	fmt.Println("GESTURE:")
	fmt.Println("  -center-x int, -center-y int")
	fmt.Printf("        Spin center in device units (default %d, %d)\n", def.Gesture.CenterX, def.Gesture.CenterY)
	fmt.Println("  -radius int")
	fmt.Printf("        Outer radius of the spin zone; the inner radius is 1/8 of it (default %d)\n", def.Gesture.Radius)
	fmt.Println("  -max-jump int")
	fmt.Printf("        Largest accepted move between two samples (default %d)\n", def.Gesture.MaxJump)
	fmt.Println("  -gesture-timeout-ms int")
	fmt.Printf("        Drop a gesture after this long without an in-zone sample (default %d)\n", def.Gesture.TimeoutMS)
	fmt.Println()
	fmt.Println("ACTIVATION:")
	fmt.Println("  -keycode int")
	fmt.Printf("        Activation key code (default %d, KEY_SPACE)\n", def.Activation.Keycode)
	fmt.Println("  -cw-spins int, -ccw-spins int")
	fmt.Printf("        Spins needed to run the command (default %d, %d)\n", def.Activation.CWSpinsRequired, def.Activation.CCWSpinsRequired)
	fmt.Println("  -after-buttonpress-ms int")
	fmt.Printf("        Attention window after the activation key (default %d)\n", def.Activation.AfterButtonpressMS)
	fmt.Println("  -after-spin-ms int")
	fmt.Printf("        Attention window after each spin (default %d)\n", def.Activation.AfterSpinMS)
	fmt.Println("  -after-success-ms int")
	fmt.Printf("        Attention window after a completed clockwise sequence (default %d)\n", def.Activation.AfterSuccessMS)
	fmt.Println("  -poll-interval-ms int")
	fmt.Printf("        Deadline check interval while armed (default %d)\n", def.Activation.PollIntervalMS)
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  -cw-command string, -ccw-command string")
	fmt.Println("        Shell command run via sh -c when a sequence completes")
	fmt.Println("  -keep-going-on-command-error")
	fmt.Println("        Log command spawn failures instead of exiting")
	fmt.Println()
	fmt.Println("CONTROL:")
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket for spinctl; empty disables (default %q)\n", def.IPC.SocketPath)
	fmt.Println("  -http-addr string")
	fmt.Println("        Listen address for /ws/state and /api/state; empty disables (default \"\")")
	fmt.Println()
	fmt.Println("GENERAL:")
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println("  -debug")
	fmt.Println("        Shorthand for -log-level debug")
	fmt.Println("  -print-config")
	fmt.Println("        Print the effective configuration as YAML and exit")
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  spinmon -keyboard /dev/input/event3 -touchpad /dev/input/event7 \\")
	fmt.Println("          -cw-command 'systemctl suspend' -ccw-command 'loginctl lock-session'")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - Positive rotation is clockwise on screen (device y grows downward)")
	fmt.Println()
}

// bindFlags registers every option on fs, writing into cfg.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Devices.Keyboard, "keyboard", cfg.Devices.Keyboard, "Input device carrying the activation key")
	fs.StringVar(&cfg.Devices.Touchpad, "touchpad", cfg.Devices.Touchpad, "Touch input device")
	fs.BoolVar(&cfg.Devices.Grab, "grab", cfg.Devices.Grab, "Grab the touch device exclusively")
	fs.IntVar(&cfg.Devices.WaitMS, "wait-devices-ms", cfg.Devices.WaitMS, "Wait for missing device nodes (ms, 0 disables)")

	fs.IntVar(&cfg.Gesture.CenterX, "center-x", cfg.Gesture.CenterX, "Spin center X")
	fs.IntVar(&cfg.Gesture.CenterY, "center-y", cfg.Gesture.CenterY, "Spin center Y")
	fs.IntVar(&cfg.Gesture.Radius, "radius", cfg.Gesture.Radius, "Spin zone outer radius")
	fs.IntVar(&cfg.Gesture.MaxJump, "max-jump", cfg.Gesture.MaxJump, "Largest accepted move between samples")
	fs.IntVar(&cfg.Gesture.TimeoutMS, "gesture-timeout-ms", cfg.Gesture.TimeoutMS, "Gesture timeout (ms)")

	fs.IntVar(&cfg.Activation.Keycode, "keycode", cfg.Activation.Keycode, "Activation key code")
	fs.IntVar(&cfg.Activation.CWSpinsRequired, "cw-spins", cfg.Activation.CWSpinsRequired, "Clockwise spins required")
	fs.IntVar(&cfg.Activation.CCWSpinsRequired, "ccw-spins", cfg.Activation.CCWSpinsRequired, "Counterclockwise spins required")
	fs.IntVar(&cfg.Activation.AfterButtonpressMS, "after-buttonpress-ms", cfg.Activation.AfterButtonpressMS, "Attention window after the activation key (ms)")
	fs.IntVar(&cfg.Activation.AfterSpinMS, "after-spin-ms", cfg.Activation.AfterSpinMS, "Attention window after each spin (ms)")
	fs.IntVar(&cfg.Activation.AfterSuccessMS, "after-success-ms", cfg.Activation.AfterSuccessMS, "Attention window after a clockwise sequence (ms)")
	fs.IntVar(&cfg.Activation.PollIntervalMS, "poll-interval-ms", cfg.Activation.PollIntervalMS, "Deadline check interval while armed (ms)")

	fs.StringVar(&cfg.Commands.CW, "cw-command", cfg.Commands.CW, "Command for a clockwise sequence")
	fs.StringVar(&cfg.Commands.CCW, "ccw-command", cfg.Commands.CCW, "Command for a counterclockwise sequence")
	fs.BoolVar(&cfg.Commands.KeepGoing, "keep-going-on-command-error", cfg.Commands.KeepGoing, "Log command spawn failures instead of exiting")

	fs.StringVar(&cfg.IPC.SocketPath, "ipc-socket", cfg.IPC.SocketPath, "Unix domain socket path for IPC (empty disables)")
	fs.StringVar(&cfg.HTTP.Addr, "http-addr", cfg.HTTP.Addr, "HTTP listen address for state push (empty disables)")

	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level: error, warn, info, debug")
	fs.BoolVar(&cfg.Logging.Debug, "debug", cfg.Logging.Debug, "Enable debug logging")
}

func main() {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("spinmon", flag.ExitOnError)
	bindFlags(fs, &cfg)
	printConfig := fs.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	showVersion := fs.Bool("version", false, "Print version and exit")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "error: unexpected arguments: %v\n", fs.Args())
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	logger := setupLogger(cfg.EffectiveLogLevel())

	if err := run(cfg, logger); err != nil {
		logger.Error("spinmon stopped", "error", err)
		os.Exit(1)
	}
}

// run wires devices, the daemon loop and the optional control surfaces and
// blocks until a signal arrives or one of them fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := waitForDevices(ctx, []string{cfg.Devices.Keyboard, cfg.Devices.Touchpad}, ms(cfg.Devices.WaitMS), logger); err != nil {
		return err
	}

	keyboard, touch, poller, closeInputs, err := openInputs(cfg.Devices)
	if err != nil {
		logger.Error("failed to open input devices", "keyboard", cfg.Devices.Keyboard, "touchpad", cfg.Devices.Touchpad,
			"error", err, "tip", "run as root or add user to 'input' group")
		return err
	}
	defer closeInputs()

	queue := newEventQueue(64, poller.Wake)

	// Broadcasts only have a consumer when the state server runs.
	var broadcasts chan StateBroadcast
	if cfg.HTTP.Addr != "" {
		broadcasts = make(chan StateBroadcast, 128)
	}

	d := newDaemon(cfg.ToDaemonConfig(), keyboard, touch, poller, newShellRunner(logger), queue, broadcasts, logger)

	logger.Debug("configuration",
		"keyboard", cfg.Devices.Keyboard,
		"touchpad", cfg.Devices.Touchpad,
		"center_x", cfg.Gesture.CenterX,
		"center_y", cfg.Gesture.CenterY,
		"radius", cfg.Gesture.Radius,
		"keycode", cfg.Activation.Keycode,
		"cw_spins", cfg.Activation.CWSpinsRequired,
		"ccw_spins", cfg.Activation.CCWSpinsRequired,
		"cw_command", cfg.Commands.CW,
		"ccw_command", cfg.Commands.CCW)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The loop blocks in the poller; wake it once everything is shutting down.
		go func() {
			<-gctx.Done()
			_ = poller.Wake()
		}()
		return d.run(gctx)
	})

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, queue, logger)
		})
	}

	if cfg.HTTP.Addr != "" {
		srv := NewServer(logger, queue, ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux)

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Addr, mux, logger)
		})
	}

	logger.Info("spinmon started", "version", version, "keyboard", cfg.Devices.Keyboard, "touchpad", cfg.Devices.Touchpad,
		"ipc", cfg.IPC.SocketPath, "http", cfg.HTTP.Addr)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		logger.Info("shutting down")
	}
	return err
}
