package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// One goroutine owns DaemonState. It waits on a single poller:
//   - Idle: keyboard only, no timeout (nothing can happen until the key is pressed)
//   - Armed: touch only, bounded timeout so deadlines expire without input
//
// Every wakeup is translated into Events, reduced, and the resulting Commands
// are executed here. Other goroutines reach the loop through an eventQueue,
// which wakes the poller.
// ============================================================================

// KeySource is the activation keyboard.
type KeySource interface {
	Fd() int
	Drain(fn func(inputEvent)) error
}

// TouchSource is the touch surface. Position returns the contact as of the
// last Drain; ok is false while no finger is down.
type TouchSource interface {
	Fd() int
	Drain() (moved bool, err error)
	Position() (p Point, ok bool, err error)
}

// Poller is the single blocking wait primitive.
type Poller interface {
	Watch(fd int) error
	Unwatch(fd int) error
	Wait(timeout time.Duration) ([]int, error)
	Wake() error
}

// eventQueue carries events from other goroutines into the daemon loop.
type eventQueue struct {
	ch   chan Event
	wake func() error
}

func newEventQueue(size int, wake func() error) *eventQueue {
	return &eventQueue{ch: make(chan Event, size), wake: wake}
}

// TrySend enqueues ev without blocking. It returns false when the queue is full.
func (q *eventQueue) TrySend(ev Event) bool {
	select {
	case q.ch <- ev:
	default:
		return false
	}
	if q.wake != nil {
		_ = q.wake()
	}
	return true
}

// Send enqueues ev, blocking until there is room or ctx is done.
func (q *eventQueue) Send(ctx context.Context, ev Event) error {
	select {
	case q.ch <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	if q.wake != nil {
		_ = q.wake()
	}
	return nil
}

// snapshotWait bounds a snapshot round-trip through the daemon loop.
const snapshotWait = time.Second

// Snapshot asks the daemon loop for a StateSnapshot and waits for the reply.
func (q *eventQueue) Snapshot(ctx context.Context) (StateSnapshot, error) {
	if q == nil {
		return StateSnapshot{}, errors.New("no event queue")
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotWait)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	if err := q.Send(ctx, RequestStateSnapshot{Reply: reply}); err != nil {
		return StateSnapshot{}, err
	}
	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// daemonConfig is the wiring the loop needs besides the reducer config.
type daemonConfig struct {
	Activation   ActivationConfig
	Keycode      uint16
	PollInterval time.Duration

	// KeepGoingOnCommandError downgrades spawn failures to log entries.
	KeepGoingOnCommandError bool
}

type daemon struct {
	cfg    daemonConfig
	state  *DaemonState
	logger *slog.Logger

	keyboard KeySource
	touch    TouchSource
	poller   Poller
	runner   CommandRunner

	queue      *eventQueue
	broadcasts chan<- StateBroadcast

	now func() time.Time

	// Keyboard events older than this are stale (queued before we listened).
	keyNotBefore time.Time
	touchWatched bool
}

func newDaemon(cfg daemonConfig, keyboard KeySource, touch TouchSource, poller Poller, runner CommandRunner, queue *eventQueue, broadcasts chan<- StateBroadcast, logger *slog.Logger) *daemon {
	return &daemon{
		cfg:        cfg,
		state:      NewDaemonState(),
		logger:     logger,
		keyboard:   keyboard,
		touch:      touch,
		poller:     poller,
		runner:     runner,
		queue:      queue,
		broadcasts: broadcasts,
		now:        time.Now,
	}
}

// run drives the loop until ctx is canceled or an unrecoverable error occurs.
// The caller must Wake the poller after canceling ctx.
func (d *daemon) run(ctx context.Context) error {
	if err := d.start(); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			d.logger.Info("daemon stopping (context canceled)")
			return nil
		}

		if err := d.step(); err != nil {
			return err
		}
	}
}

// start begins listening for the activation key.
func (d *daemon) start() error {
	d.keyNotBefore = d.now()
	return d.poller.Watch(d.keyboard.Fd())
}

// step performs one wait and reduces everything it produced.
func (d *daemon) step() error {
	timeout := time.Duration(-1)
	if _, armed := d.state.Activation.(Armed); armed {
		timeout = d.cfg.PollInterval
	}

	ready, err := d.poller.Wait(timeout)
	if err != nil {
		return err
	}
	now := d.now()

	sampled := false
	for _, fd := range ready {
		switch fd {
		case d.keyboard.Fd():
			if err := d.readKeyboard(now); err != nil {
				return err
			}
		case d.touch.Fd():
			ok, err := d.readTouch(now)
			if err != nil {
				return err
			}
			sampled = sampled || ok
		}
	}

	if err := d.readQueue(now); err != nil {
		return err
	}

	if _, armed := d.state.Activation.(Armed); armed && !sampled {
		return d.reduce(Tick{Now: now})
	}
	return nil
}

func (d *daemon) readKeyboard(now time.Time) error {
	var pressed []inputEvent
	err := d.keyboard.Drain(func(ev inputEvent) {
		if keyActivates(ev, d.cfg.Keycode, d.keyNotBefore) {
			pressed = append(pressed, ev)
		}
	})
	if err != nil {
		return err
	}
	for _, ev := range pressed {
		d.logger.Debug("activation key", "code", ev.Code, "event_time", ev.Time().Format(time.RFC3339Nano))
		if err := d.reduce(KeyActivated{Code: ev.Code, At: now}); err != nil {
			return err
		}
	}
	return nil
}

func (d *daemon) readTouch(now time.Time) (bool, error) {
	moved, err := d.touch.Drain()
	if err != nil || !moved || !d.touchWatched {
		return false, err
	}

	p, ok, err := d.touch.Position()
	if err != nil || !ok {
		return false, err
	}
	d.logger.Debug("touch", "x", p.X, "y", p.Y)
	return true, d.reduce(TouchSampled{Point: p, At: now})
}

func (d *daemon) readQueue(now time.Time) error {
	if d.queue == nil {
		return nil
	}
	for {
		select {
		case ev := <-d.queue.ch:
			if _, ok := ev.(RequestStateSnapshot); !ok {
				ev = TimedEvent{Event: ev, At: now}
			}
			if err := d.reduce(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// reduce applies ev and executes the resulting commands and broadcasts.
func (d *daemon) reduce(ev Event) error {
	rr := Reduce(d.state, ev, d.cfg.Activation)
	if rr.State != nil {
		d.state = rr.State
	}

	for _, b := range rr.Broadcasts {
		logBroadcast(d.logger, b)
		d.publish(b)
	}

	var errs []error
	for _, cmd := range rr.Commands {
		if err := d.runEffect(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publish never blocks the loop; observers that fall behind lose messages.
func (d *daemon) publish(b StateBroadcast) {
	if d.broadcasts == nil {
		return
	}
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Warn("broadcast queue full, dropping message", "type", fmt.Sprintf("%T", b))
	}
}

// setTouchWatch swaps the poll set between keyboard (Idle) and touch (Armed).
func (d *daemon) setTouchWatch(enabled bool) error {
	if enabled == d.touchWatched {
		return nil
	}

	if enabled {
		if err := d.poller.Unwatch(d.keyboard.Fd()); err != nil {
			return err
		}
		// Queued touch events predate the window; keep the contact state they
		// carry but do not sample from them.
		if _, err := d.touch.Drain(); err != nil {
			return err
		}
		if err := d.poller.Watch(d.touch.Fd()); err != nil {
			return err
		}
	} else {
		if err := d.poller.Unwatch(d.touch.Fd()); err != nil {
			return err
		}
		d.keyNotBefore = d.now()
		if err := d.poller.Watch(d.keyboard.Fd()); err != nil {
			return err
		}
	}

	d.touchWatched = enabled
	return nil
}
