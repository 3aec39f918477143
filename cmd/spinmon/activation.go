package main

import "time"

// ActivationConfig is the reducer's view of the configuration. It is fixed at
// startup and never mutated.
type ActivationConfig struct {
	Gesture GestureConfig

	CWSpinsRequired  int
	CCWSpinsRequired int

	AfterButtonpressAttention  time.Duration
	AfterSpinAttention         time.Duration
	AfterSuccessfulCWAttention time.Duration

	CWCommand  string
	CCWCommand string
}

// ActivationState is either Idle or Armed. Use a type switch; there is no
// other variant.
type ActivationState interface {
	activationState()
	Name() string
}

// Idle waits for the activation key. Touch input is not watched.
type Idle struct{}

func (Idle) activationState() {}
func (Idle) Name() string     { return "idle" }

// Armed watches the touch device until Deadline.
// Gesture is nil until the first in-zone sample arrives.
type Armed struct {
	Deadline time.Time
	Gesture  *GestureState
}

func (Armed) activationState() {}
func (Armed) Name() string     { return "armed" }

// DaemonState is the daemon-owned state container. Only the daemon loop
// touches it, through Reduce.
type DaemonState struct {
	Activation ActivationState

	// Bookkeeping for snapshots.
	ChangedAt       time.Time
	Activations     int
	Reactions       int
	CommandsFired   int
	GesturesAborted int
}

// NewDaemonState returns the initial state: Idle.
func NewDaemonState() *DaemonState {
	return &DaemonState{Activation: Idle{}}
}

// StateSnapshot is an immutable copy of DaemonState handed to other goroutines.
type StateSnapshot struct {
	State           string    `json:"state"`
	ChangedAt       time.Time `json:"changed_at"`
	Deadline        time.Time `json:"deadline,omitempty"`
	GestureActive   bool      `json:"gesture_active"`
	Spinner         float64   `json:"spinner"`
	ReactedSpin     float64   `json:"reacted_spin"`
	Activations     int       `json:"activations"`
	Reactions       int       `json:"reactions"`
	CommandsFired   int       `json:"commands_fired"`
	GesturesAborted int       `json:"gestures_aborted"`
}

// Snapshot copies the current state.
func (s *DaemonState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		ChangedAt:       s.ChangedAt,
		Activations:     s.Activations,
		Reactions:       s.Reactions,
		CommandsFired:   s.CommandsFired,
		GesturesAborted: s.GesturesAborted,
	}

	switch st := s.Activation.(type) {
	case Armed:
		snap.State = st.Name()
		snap.Deadline = st.Deadline
		if st.Gesture != nil {
			snap.GestureActive = true
			snap.Spinner = st.Gesture.Spinner
			snap.ReactedSpin = st.Gesture.ReactedSpin
		}
	default:
		snap.State = Idle{}.Name()
	}
	return snap
}
