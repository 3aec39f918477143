package main

import (
	"fmt"
	"time"
)

// This file implements the reducer-style core:
//
//   - Events: inputs (key activation, touch samples, ticks, external requests)
//   - Commands: side effects requested by the reducer (spawn a command, watch the touch device)
//   - Broadcasts: state notifications for observers (logs, websocket clients)
//   - Reduce(): computes next state + commands + broadcasts without performing I/O
//
// The daemon loop executes Commands and is the only owner of DaemonState.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop while Armed when no sample arrived
// within the poll interval. It only drives deadline expiry.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// KeyActivated is a qualifying press of the activation key.
type KeyActivated struct {
	Code uint16
	At   time.Time
}

func (KeyActivated) eventMarker() {}

// TouchSampled carries the touch device's current position.
type TouchSampled struct {
	Point Point
	At    time.Time
}

func (TouchSampled) eventMarker() {}

// TimedEvent stamps an external payload event with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// RequestStateSnapshot asks the reducer for a snapshot delivered on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ==============================
// Commands (side effects)
// ==============================

// Command is a side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdWatchTouch adds or removes the touch device from the poll set.
type CmdWatchTouch struct {
	Enabled bool
}

func (CmdWatchTouch) commandMarker()   {}
func (c CmdWatchTouch) String() string { return fmt.Sprintf("CmdWatchTouch(enabled=%v)", c.Enabled) }

// CmdRunCommand spawns the configured shell command for a completed sequence.
type CmdRunCommand struct {
	Direction SpinDirection
	Count     int
	Command   string
}

func (CmdRunCommand) commandMarker() {}
func (c CmdRunCommand) String() string {
	return fmt.Sprintf("CmdRunCommand(direction=%s, count=%d, command=%q)", c.Direction, c.Count, c.Command)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a notification about something the reducer decided.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStateChanged reports an Idle/Armed transition.
type BroadcastStateChanged struct {
	State    string
	Reason   string
	Deadline time.Time
	At       time.Time
}

func (BroadcastStateChanged) broadcastMarker() {}

// BroadcastSpin reports a spin reaction.
type BroadcastSpin struct {
	Direction SpinDirection
	Count     int
	Spinner   float64
	Deadline  time.Time
	At        time.Time
}

func (BroadcastSpin) broadcastMarker() {}

// BroadcastGestureAborted reports a dropped gesture.
type BroadcastGestureAborted struct {
	Reason  GestureOutcome
	Spinner float64
	At      time.Time
}

func (BroadcastGestureAborted) broadcastMarker() {}

// BroadcastCommandFired reports a completed sequence that triggered a command.
type BroadcastCommandFired struct {
	Direction SpinDirection
	Count     int
	Command   string
	At        time.Time
}

func (BroadcastCommandFired) broadcastMarker() {}

// ==============================
// Reducer
// ==============================

// ReduceResult is the output of Reduce().
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer. It must not perform I/O or block.
func Reduce(s *DaemonState, e Event, cfg ActivationConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState()
	}
	if s.Activation == nil {
		s.Activation = Idle{}
	}

	var rr ReduceResult

	var at time.Time
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		at = te.At
	}

	switch ev := e.(type) {
	case KeyActivated:
		s.arm(ev.At, "key", cfg, &rr)

	case ArmRequested:
		origin := ev.Origin
		if origin == "" {
			origin = "ipc"
		}
		s.arm(at, origin, cfg, &rr)

	case ResetRequested:
		if _, armed := s.Activation.(Armed); armed {
			s.toIdle(at, "reset", &rr)
		}

	case Tick:
		s.expire(ev.Now, &rr)

	case TouchSampled:
		if s.expire(ev.At, &rr) {
			break
		}
		s.touch(ev, cfg, &rr)

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(),
		})

	default:
		// Unknown event type: no-op.
	}

	rr.State = s
	return rr
}

// arm moves Idle to Armed. While Armed, activation requests are ignored.
func (s *DaemonState) arm(now time.Time, reason string, cfg ActivationConfig, rr *ReduceResult) {
	if _, idle := s.Activation.(Idle); !idle {
		return
	}

	armed := Armed{Deadline: now.Add(cfg.AfterButtonpressAttention)}
	s.Activation = armed
	s.ChangedAt = now
	s.Activations++

	rr.Commands = append(rr.Commands, CmdWatchTouch{Enabled: true})
	rr.Broadcasts = append(rr.Broadcasts, BroadcastStateChanged{
		State:    armed.Name(),
		Reason:   reason,
		Deadline: armed.Deadline,
		At:       now,
	})
}

// toIdle discards the attention window and any gesture in progress.
func (s *DaemonState) toIdle(now time.Time, reason string, rr *ReduceResult) {
	s.Activation = Idle{}
	s.ChangedAt = now

	rr.Commands = append(rr.Commands, CmdWatchTouch{Enabled: false})
	rr.Broadcasts = append(rr.Broadcasts, BroadcastStateChanged{
		State:  Idle{}.Name(),
		Reason: reason,
		At:     now,
	})
}

// expire returns to Idle once the attention deadline has passed.
func (s *DaemonState) expire(now time.Time, rr *ReduceResult) bool {
	armed, ok := s.Activation.(Armed)
	if !ok || !now.After(armed.Deadline) {
		return false
	}
	s.toIdle(now, "deadline", rr)
	return true
}

// touch feeds one sample to the gesture tracker while Armed.
func (s *DaemonState) touch(ev TouchSampled, cfg ActivationConfig, rr *ReduceResult) {
	armed, ok := s.Activation.(Armed)
	if !ok {
		return
	}

	sample := cfg.Gesture.Zone.Locate(ev.Point)

	if armed.Gesture == nil {
		if sample.InZone {
			g := startGesture(ev.At, sample, cfg.Gesture)
			armed.Gesture = &g
			s.Activation = armed
		}
		return
	}

	up := updateGesture(armed.Gesture, ev.At, sample, cfg.Gesture)

	if up.Outcome.Drop() {
		armed.Gesture = nil
		s.Activation = armed
		s.GesturesAborted++
		rr.Broadcasts = append(rr.Broadcasts, BroadcastGestureAborted{
			Reason:  up.Outcome,
			Spinner: up.Spinner,
			At:      ev.At,
		})
		return
	}

	if up.Reaction == nil {
		return
	}

	r := *up.Reaction
	s.Reactions++
	armed.Deadline = ev.At.Add(cfg.AfterSpinAttention)

	var command string
	fire := false
	switch r.Direction {
	case SpinCW:
		if r.Count == cfg.CWSpinsRequired {
			fire = true
			command = cfg.CWCommand
			// Only the clockwise sequence earns the long cooldown window.
			armed.Deadline = ev.At.Add(cfg.AfterSuccessfulCWAttention)
		}
	case SpinCCW:
		if r.Count == cfg.CCWSpinsRequired {
			fire = true
			command = cfg.CCWCommand
		}
	}
	s.Activation = armed

	rr.Broadcasts = append(rr.Broadcasts, BroadcastSpin{
		Direction: r.Direction,
		Count:     r.Count,
		Spinner:   up.Spinner,
		Deadline:  armed.Deadline,
		At:        ev.At,
	})

	if fire {
		s.CommandsFired++
		rr.Commands = append(rr.Commands, CmdRunCommand{
			Direction: r.Direction,
			Count:     r.Count,
			Command:   command,
		})
		rr.Broadcasts = append(rr.Broadcasts, BroadcastCommandFired{
			Direction: r.Direction,
			Count:     r.Count,
			Command:   command,
			At:        ev.At,
		})
	}
}
