package main

import "fmt"

// runEffect executes a single reducer-emitted Command.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly.
// - A returned error stops the daemon.
func (d *daemon) runEffect(cmd Command) error {
	switch c := cmd.(type) {
	case CmdWatchTouch:
		if err := d.setTouchWatch(c.Enabled); err != nil {
			return fmt.Errorf("switch poll set: %w", err)
		}

	case CmdRunCommand:
		if c.Command == "" {
			d.logger.Warn("no command configured", "direction", c.Direction, "count", c.Count)
			return nil
		}
		if d.runner == nil {
			return errNoRunner{}
		}
		if err := d.runner.Run(c.Command); err != nil {
			if d.cfg.KeepGoingOnCommandError {
				d.logger.Error("command failed to start", "direction", c.Direction, "command", c.Command, "error", err)
				return nil
			}
			return fmt.Errorf("run %s command: %w", c.Direction, err)
		}
		d.logger.Debug("command started", "direction", c.Direction, "command", c.Command)

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			d.logger.Warn("state snapshot requested with nil reply channel")
			return nil
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			d.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		d.logger.Warn("unknown command type", "command", cmd.String())
	}
	return nil
}

// errNoRunner indicates a command was requested without a CommandRunner.
type errNoRunner struct{}

func (errNoRunner) Error() string { return "no command runner" }
