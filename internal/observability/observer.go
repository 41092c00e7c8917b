// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package observability

import (
	"time"

	"github.com/idlefleet/idlefleet/internal/account"
)

// Observer feeds session, admission and side-effect events into Metrics.
// It satisfies account.Observer, scheduler.Observer and
// playtime.FailureReporter.
type Observer struct {
	m *Metrics
}

// NewObserver returns an Observer recording into m.
func NewObserver(m *Metrics) *Observer {
	return &Observer{m: m}
}

// Track sets the baseline of n accounts that have not started yet.
func (o *Observer) Track(n int) {
	for _, st := range account.States {
		o.m.AccountState.WithLabelValues(st.String()).Set(0)
	}
	o.m.AccountState.WithLabelValues(account.Idle.String()).Set(float64(n))
}

// StateChanged moves one account from the from gauge to the to gauge.
func (o *Observer) StateChanged(_ string, from, to account.State) {
	o.m.AccountState.WithLabelValues(from.String()).Dec()
	o.m.AccountState.WithLabelValues(to.String()).Inc()
}

// LoginAttempt counts a finished login attempt by phase and outcome.
func (o *Observer) LoginAttempt(phase account.Phase, outcome account.Outcome) {
	o.m.LoginAttempts.WithLabelValues(string(phase), string(outcome)).Inc()
}

// SessionEnded records the length of a completed online period.
func (o *Observer) SessionEnded(_ string, d time.Duration) {
	o.m.OnlineSession.Observe(d.Seconds())
}

// SideEffectFailed counts a failed best-effort side effect such as a stats
// refresh or a playtime write.
func (o *Observer) SideEffectFailed(effect string) {
	o.m.SideEffectFailures.WithLabelValues(effect).Inc()
}

// AdmissionAdvanced publishes the next index allowed to log in for the first
// time.
func (o *Observer) AdmissionAdvanced(next int) {
	o.m.AdmissionNextIndex.Set(float64(next))
}

// RelogQueueChanged publishes the relog queue length.
func (o *Observer) RelogQueueChanged(length int) {
	o.m.RelogQueueLength.Set(float64(length))
}
