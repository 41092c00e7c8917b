// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package account

import "time"

// State is a step in an account's lifecycle.
type State uint8

const (
	Idle State = iota
	AwaitingTurn
	Connecting
	Online
	Disconnected
	AwaitingRelogTurn
	RelogDelayed
)

// States lists every state, in declaration order.
var States = []State{Idle, AwaitingTurn, Connecting, Online, Disconnected, AwaitingRelogTurn, RelogDelayed}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingTurn:
		return "awaiting_turn"
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Disconnected:
		return "disconnected"
	case AwaitingRelogTurn:
		return "awaiting_relog_turn"
	case RelogDelayed:
		return "relog_delayed"
	default:
		return "unknown"
	}
}

// Phase tells initial logins from relogs.
type Phase string

const (
	PhaseBoot  Phase = "boot"
	PhaseRelog Phase = "relog"
)

// Outcome is the result of one login attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeCancelled Outcome = "cancelled"
)

// Observer is told about transitions and side effects. Side-effect failures
// are reported from background goroutines, so implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	StateChanged(account string, from, to State)
	LoginAttempt(phase Phase, outcome Outcome)
	SessionEnded(account string, online time.Duration)
	SideEffectFailed(effect string)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) StateChanged(string, State, State)  {}
func (NopObserver) LoginAttempt(Phase, Outcome)        {}
func (NopObserver) SessionEnded(string, time.Duration) {}
func (NopObserver) SideEffectFailed(string)            {}

// Status is a point-in-time copy of a session, for reporting.
type Status struct {
	Index      int
	Name       string
	Proxy      string
	State      State
	Since      time.Time
	OnlineAt   time.Time
	Activities []string
	RunID      string
	// Terminal is set once the session has stopped for good: superseded,
	// aborted or failed its initial login.
	Terminal  bool
	LastError string
}
