package main

import (
	"fmt"
	"math"
	"time"
)

// GestureConfig holds the gesture-local tuning knobs.
type GestureConfig struct {
	Zone Zone

	// Timeout is how long a gesture survives without a qualifying sample.
	Timeout time.Duration

	// MaxJump is the largest distance allowed between consecutive samples.
	// Anything larger is treated as a lift and re-touch elsewhere.
	MaxJump float64
}

// GestureState is the state of one in-progress spin gesture.
//
// Spinner is the accumulated rotation in full turns (positive = clockwise).
// ReactedSpin is the last integer turn already acted upon; it only ever moves
// by exactly ±1 per reaction.
type GestureState struct {
	Deadline    time.Time
	PrevPoint   Point
	PrevAngle   float64
	Spinner     float64
	ReactedSpin float64
}

// SpinDirection is the rotation direction of a reaction.
type SpinDirection int

const (
	SpinCW  SpinDirection = 1
	SpinCCW SpinDirection = -1
)

func (d SpinDirection) String() string {
	switch d {
	case SpinCW:
		return "cw"
	case SpinCCW:
		return "ccw"
	default:
		return fmt.Sprintf("SpinDirection(%d)", int(d))
	}
}

// SpinReaction is emitted every time the accumulated rotation crosses the next
// full turn. Count is the magnitude of ReactedSpin after the crossing.
type SpinReaction struct {
	Direction SpinDirection
	Count     int
}

// GestureOutcome tells the caller what to do with the gesture after an update.
type GestureOutcome int

const (
	// OutcomeContinue: sample consumed, gesture retained.
	OutcomeContinue GestureOutcome = iota
	// OutcomeNoOp: sample outside the zone, gesture retained.
	OutcomeNoOp
	// OutcomeExpired: no qualifying sample before the deadline.
	OutcomeExpired
	// OutcomeJumpInvalidated: the point moved farther than MaxJump in one sample.
	OutcomeJumpInvalidated
	// OutcomeReversalInvalidated: a full turn against the committed direction.
	OutcomeReversalInvalidated
)

func (o GestureOutcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeNoOp:
		return "noop"
	case OutcomeExpired:
		return "expired"
	case OutcomeJumpInvalidated:
		return "jump"
	case OutcomeReversalInvalidated:
		return "reversal"
	default:
		return fmt.Sprintf("GestureOutcome(%d)", int(o))
	}
}

// Drop reports whether the caller must discard the gesture.
func (o GestureOutcome) Drop() bool {
	return o == OutcomeExpired || o == OutcomeJumpInvalidated || o == OutcomeReversalInvalidated
}

// GestureUpdate is the result of feeding one sample to a gesture.
type GestureUpdate struct {
	Outcome     GestureOutcome
	Reaction    *SpinReaction
	Spinner     float64
	ReactedSpin float64
}

// startGesture begins tracking at the given in-zone sample.
func startGesture(now time.Time, s ZoneSample, cfg GestureConfig) GestureState {
	return GestureState{
		Deadline:  now.Add(cfg.Timeout),
		PrevPoint: s.Point,
		PrevAngle: s.Angle,
	}
}

// updateGesture advances g by one sample.
//
// Checks run in order: expiry, jump distance, zone membership. Only a sample
// passing all three contributes rotation and may produce a reaction.
func updateGesture(g *GestureState, now time.Time, s ZoneSample, cfg GestureConfig) GestureUpdate {
	res := GestureUpdate{Spinner: g.Spinner, ReactedSpin: g.ReactedSpin}

	if now.After(g.Deadline) {
		res.Outcome = OutcomeExpired
		return res
	}

	if s.Point.Sub(g.PrevPoint).SquareLength() > cfg.MaxJump*cfg.MaxJump {
		res.Outcome = OutcomeJumpInvalidated
		return res
	}

	if !s.InZone {
		// Keep following the finger so re-entering the zone is not a jump.
		g.PrevPoint = s.Point
		res.Outcome = OutcomeNoOp
		return res
	}

	g.Spinner += ShortestSignedDifference(g.PrevAngle, s.Angle) / (2 * math.Pi)
	g.Deadline = now.Add(cfg.Timeout)
	g.PrevAngle = s.Angle
	g.PrevPoint = s.Point

	res.Outcome = applySpinThreshold(g, &res)
	res.Spinner = g.Spinner
	res.ReactedSpin = g.ReactedSpin
	return res
}

// applySpinThreshold implements the reaction policy.
//
// Once committed to a direction (|ReactedSpin| >= 1) a full turn the other way
// aborts the gesture. While neutral either direction may commit. Upward
// crossings use >=, downward crossings use <.
func applySpinThreshold(g *GestureState, res *GestureUpdate) GestureOutcome {
	up := g.Spinner >= g.ReactedSpin+1.0
	down := g.Spinner < g.ReactedSpin-1.0

	switch {
	case g.ReactedSpin > 0.5:
		if up {
			g.ReactedSpin += 1.0
			res.Reaction = &SpinReaction{Direction: SpinCW, Count: int(math.Round(g.ReactedSpin))}
		} else if down {
			return OutcomeReversalInvalidated
		}
	case g.ReactedSpin < -0.5:
		if down {
			g.ReactedSpin -= 1.0
			res.Reaction = &SpinReaction{Direction: SpinCCW, Count: int(math.Round(-g.ReactedSpin))}
		} else if up {
			return OutcomeReversalInvalidated
		}
	default:
		if up {
			g.ReactedSpin += 1.0
			res.Reaction = &SpinReaction{Direction: SpinCW, Count: int(math.Round(g.ReactedSpin))}
		} else if down {
			g.ReactedSpin -= 1.0
			res.Reaction = &SpinReaction{Direction: SpinCCW, Count: int(math.Round(-g.ReactedSpin))}
		}
	}
	return OutcomeContinue
}
