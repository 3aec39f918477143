package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// CommandRunner starts an external command without waiting for it.
type CommandRunner interface {
	Run(command string) error
}

// CommandRunnerFunc adapts a function to CommandRunner.
type CommandRunnerFunc func(command string) error

func (f CommandRunnerFunc) Run(command string) error { return f(command) }

// shellRunner spawns commands through `sh -c`. The child inherits stdout and
// stderr; it is reaped in the background so no zombies are left behind.
type shellRunner struct {
	shell  string
	logger *slog.Logger
}

func newShellRunner(logger *slog.Logger) *shellRunner {
	return &shellRunner{shell: "/bin/sh", logger: logger}
}

func (r *shellRunner) Run(command string) error {
	cmd := exec.Command(r.shell, "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			r.logger.Warn("command exited with error", "command", command, "pid", cmd.Process.Pid, "error", err)
			return
		}
		r.logger.Debug("command finished", "command", command, "pid", cmd.Process.Pid)
	}()
	return nil
}
