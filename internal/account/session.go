// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package account runs one account's lifecycle: waiting for its admission
// turn, logging on, staying online and finding its way back through the
// relog queue after a connection loss.
//
// Each Session is driven by a single goroutine (Run) that consumes the
// remote client's events and the completions of its own timers and waits.
// Shared admission state lives in the injected scheduler.Coordinator.
package account

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/internal/playtime"
	"github.com/idlefleet/idlefleet/internal/remote"
	"github.com/idlefleet/idlefleet/internal/scheduler"
	"github.com/idlefleet/idlefleet/internal/totp"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

const tracerName = "github.com/idlefleet/idlefleet/internal/account"

// Settings are the per-account runtime parameters.
type Settings struct {
	LoginDelay   time.Duration
	RelogDelay   time.Duration
	RetryDelay   time.Duration
	OnlineStatus int
	Activities   []string
	AutoReply    string
	StatsTimeout time.Duration
}

// Recorder receives completed session summaries.
type Recorder interface {
	Record(s playtime.Summary)
}

// StatsRefresher refreshes external stats for a logged-on account.
type StatsRefresher interface {
	Refresh(ctx context.Context, accountID string) error
}

// Deps are the collaborators of a Session. Playtime, Stats and Observer are
// optional.
type Deps struct {
	Coordinator *scheduler.Coordinator
	Credentials credential.Provider
	Client      remote.Client
	Playtime    Recorder
	Stats       StatsRefresher
	Observer    Observer
	Logger      *slog.Logger
}

type signalKind uint8

const (
	sigTurn signalKind = iota + 1
	sigLoginDue
	sigCredential
	sigRelogTurn
)

// signal is the completion of an asynchronous step. Signals from a
// superseded step carry an old generation and are dropped.
type signal struct {
	kind      signalKind
	gen       uint64
	token     string
	guardCode string
	err       error
}

// Session is one account's state machine.
type Session struct {
	id    credential.Identity
	proxy string
	set   Settings

	coord   *scheduler.Coordinator
	creds   credential.Provider
	client  remote.Client
	record  Recorder
	stats   StatsRefresher
	obs     Observer
	logger  *slog.Logger
	tracer  trace.Tracer
	backoff retry.Backoff

	signals chan signal
	wg      sync.WaitGroup

	// owned by the Run goroutine
	runCtx    context.Context
	gen       uint64
	opCancel  context.CancelFunc
	booting   bool
	phase     Phase
	span      trace.Span
	spanStart time.Time

	// guarded by mu; read by Status
	mu         sync.RWMutex
	state      State
	since      time.Time
	startedAt  time.Time
	activities []string
	runID      ulid.ULID
	terminal   bool
	lastErr    string
}

// New creates a Session for id routed through proxy.
func New(id credential.Identity, proxy string, set Settings, deps Deps) (*Session, error) {
	if deps.Coordinator == nil {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("coordinator is required")
	}
	if deps.Credentials == nil {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("credential provider is required")
	}
	if deps.Client == nil {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("remote client is required")
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Session{
		id:      id,
		proxy:   proxy,
		set:     set,
		coord:   deps.Coordinator,
		creds:   deps.Credentials,
		client:  deps.Client,
		record:  deps.Playtime,
		stats:   deps.Stats,
		obs:     deps.Observer,
		logger:  deps.Logger,
		tracer:  otel.Tracer(tracerName),
		backoff: newBackoff(set.RetryDelay),
		signals: make(chan signal),
		state:   Idle,
		since:   time.Now(),
	}, nil
}

// Index returns the account's login index.
func (s *Session) Index() int { return s.id.Index }

// Name returns the account name.
func (s *Session) Name() string { return s.id.Name }

// Status returns a copy of the session's reportable state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Index:      s.id.Index,
		Name:       s.id.Name,
		Proxy:      s.proxy,
		State:      s.state,
		Since:      s.since,
		OnlineAt:   s.startedAt,
		Activities: append([]string(nil), s.activities...),
		Terminal:   s.terminal,
		LastError:  s.lastErr,
	}
	if s.runID != (ulid.ULID{}) {
		st.RunID = s.runID.String()
	}
	return st
}

// Run drives the session until ctx is cancelled. It waits for the
// account's admission turn first.
func (s *Session) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.booting = true
	s.phase = PhaseBoot
	s.setState(AwaitingTurn)
	s.awaitTurn()

	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		case sig := <-s.signals:
			if sig.gen != s.gen {
				continue
			}
			s.handleSignal(sig)
		}
	}
}

func (s *Session) shutdown() {
	s.cancelOp()
	s.wg.Wait()
	s.endAttempt(OutcomeCancelled, nil)
	s.flushSummary()
	s.client.Disconnect()
	s.logger.Info("session stopped", "state", s.currentState().String())
}

// beginOp cancels the pending step and returns the context for the next.
func (s *Session) beginOp() (context.Context, uint64) {
	s.cancelOp()
	s.gen++
	ctx, cancel := context.WithCancel(s.runCtx)
	s.opCancel = cancel
	return ctx, s.gen
}

func (s *Session) cancelOp() {
	if s.opCancel != nil {
		s.opCancel()
		s.opCancel = nil
	}
}

// spawn runs fn in a goroutine and delivers its signal to the loop, unless
// the step was cancelled first.
func (s *Session) spawn(fn func(ctx context.Context) (signal, bool)) {
	ctx, gen := s.beginOp()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sig, ok := fn(ctx)
		if !ok {
			return
		}
		sig.gen = gen
		select {
		case s.signals <- sig:
		case <-ctx.Done():
		}
	}()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) awaitTurn() {
	s.spawn(func(ctx context.Context) (signal, bool) {
		if err := s.coord.WaitTurn(ctx, s.id.Index); err != nil {
			return signal{}, false
		}
		return signal{kind: sigTurn}, true
	})
}

func (s *Session) scheduleLogin(delay time.Duration) {
	s.spawn(func(ctx context.Context) (signal, bool) {
		if !sleep(ctx, delay) {
			return signal{}, false
		}
		return signal{kind: sigLoginDue}, true
	})
}

func (s *Session) fetchCredential() {
	id := s.id
	if id.SharedSecret != "" {
		code, err := totp.Now(id.SharedSecret)
		if err != nil {
			errutil.LogWarn(s.logger, "failed to generate guard code", err)
		}
		id.GuardCode = code
	}
	s.spawn(func(ctx context.Context) (signal, bool) {
		token, err := s.creds.Credential(ctx, id)
		if ctx.Err() != nil {
			return signal{}, false
		}
		return signal{kind: sigCredential, token: token, guardCode: id.GuardCode, err: err}, true
	})
}

// awaitRelogTurn waits the relog delay, then for the front of the queue.
func (s *Session) awaitRelogTurn() {
	s.setState(AwaitingRelogTurn)
	s.logger.Info("waiting for relog turn", "relog_delay", s.set.RelogDelay, "queue_length", s.coord.Len())
	s.spawn(func(ctx context.Context) (signal, bool) {
		if !sleep(ctx, s.set.RelogDelay) {
			return signal{}, false
		}
		if err := s.coord.WaitFront(ctx, s.id.Index); err != nil {
			return signal{}, false
		}
		return signal{kind: sigRelogTurn}, true
	})
}

func (s *Session) handleSignal(sig signal) {
	switch sig.kind {
	case sigTurn:
		s.logger.Info("admission turn granted", "proxy", s.proxy, "login_delay", s.set.LoginDelay)
		s.setState(Connecting)
		s.scheduleLogin(s.set.LoginDelay)
	case sigRelogTurn:
		s.logger.Info("relog turn granted", "login_delay", s.set.LoginDelay)
		s.setState(RelogDelayed)
		s.client.Disconnect()
		s.scheduleLogin(s.set.LoginDelay)
	case sigLoginDue:
		s.setState(Connecting)
		s.startAttempt()
		s.fetchCredential()
	case sigCredential:
		s.cancelOp()
		s.connect(sig.token, sig.guardCode, sig.err)
	}
}

func (s *Session) connect(token, guardCode string, err error) {
	if errors.Is(err, credential.ErrAborted) {
		s.abort()
		return
	}
	if err != nil {
		s.credentialFailed(err)
		return
	}

	logOn := remote.LogOn{
		AccountName:  s.id.Name,
		RefreshToken: token,
		GuardCode:    guardCode,
		Proxy:        s.proxy,
	}
	s.logger.Info("logging in", "phase", string(s.phase))
	if err := s.client.Connect(s.runCtx, logOn); err != nil {
		s.loginFailed(err)
	}
}

func (s *Session) handleEvent(ev remote.Event) {
	switch ev.Kind {
	case remote.EventConnected:
		s.onConnected()
	case remote.EventDisconnected:
		s.onDisconnected(ev.Reason)
	case remote.EventError:
		s.onError(ev.Err)
	case remote.EventCredentialRotated:
		s.onCredentialRotated(ev.Credential)
	case remote.EventMessage:
		s.onMessage(ev)
	default:
		s.logger.Debug("ignoring unknown event", "kind", ev.Kind.String())
	}
}

func (s *Session) onConnected() {
	if s.currentState() != Connecting {
		s.logger.Debug("ignoring connected event", "state", s.currentState().String())
		return
	}

	s.endAttempt(OutcomeSuccess, nil)
	if s.booting {
		s.booting = false
		s.coord.Advance()
	}
	if s.coord.Dequeue(s.id.Index) {
		s.logger.Info("relog successful")
	}
	s.phase = PhaseRelog
	s.backoff = newBackoff(s.set.RetryDelay)

	activities := append([]string(nil), s.set.Activities...)
	s.mu.Lock()
	s.startedAt = time.Now()
	s.activities = activities
	s.runID = ulid.Make()
	s.lastErr = ""
	runID := s.runID.String()
	s.mu.Unlock()
	s.setState(Online)
	s.logger.Info("online", "run_id", runID, "activities", len(activities))

	if s.set.OnlineStatus != 0 {
		if err := s.client.SetPresence(s.set.OnlineStatus); err != nil {
			s.sideEffectFailed("presence", err)
		}
	}
	declared := make([]remote.Activity, len(activities))
	for i, a := range activities {
		declared[i] = remote.Activity(a)
	}
	if err := s.client.SetActivities(declared); err != nil {
		s.sideEffectFailed("activities", err)
	}
	s.refreshStats()
}

func (s *Session) refreshStats() {
	if s.stats == nil {
		return
	}
	accountID := s.client.AccountID()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.runCtx
		if s.set.StatsTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.set.StatsTimeout)
			defer cancel()
		}
		if err := s.stats.Refresh(ctx, accountID); err != nil {
			s.sideEffectFailed("stats", err)
		}
	}()
}

func (s *Session) onDisconnected(reason string) {
	if s.coord.Contains(s.id.Index) {
		s.logger.Debug("already waiting for relog, ignoring disconnect", "reason", reason)
		return
	}
	switch st := s.currentState(); {
	case st == Online:
		s.logger.Info("lost connection", "reason", reason, "relog_delay", s.set.RelogDelay)
		s.enterRelog()
	case st == Connecting && s.booting:
		// The initial attempt never completed. Give the turn away and come
		// back through the relog queue.
		s.logger.Warn("connection dropped during initial login", "reason", reason)
		s.endAttempt(OutcomeRequeued, nil)
		s.booting = false
		s.coord.Advance()
		s.enterRelog()
	default:
		s.logger.Debug("ignoring disconnect", "state", st.String(), "reason", reason)
	}
}

// enterRelog leaves Online (if needed) and joins the relog queue.
func (s *Session) enterRelog() {
	s.cancelOp()
	s.setState(Disconnected)
	s.flushSummary()
	s.phase = PhaseRelog
	s.coord.Enqueue(s.id.Index)
	s.awaitRelogTurn()
}

func (s *Session) onError(err error) {
	if result, ok := remote.ResultOf(err); ok && result == remote.ResultLogonSessionReplaced {
		s.superseded(err)
		return
	}

	switch st := s.currentState(); {
	case st == Connecting:
		s.loginFailed(err)
	case st == Online:
		if s.coord.Contains(s.id.Index) {
			return
		}
		errutil.LogWarn(s.logger, "lost connection", err, "relog_delay", s.set.RelogDelay)
		s.setLastError(err)
		s.enterRelog()
	default:
		s.logger.Debug("ignoring error", "state", st.String(), "error", err)
	}
}

// loginFailed classifies a failed attempt in the Connecting state.
func (s *Session) loginFailed(err error) {
	s.setLastError(err)

	if !s.booting {
		if recoverable(err) {
			s.invalidate(err)
		}
		s.requeueRelog(err)
		return
	}

	if recoverable(err) {
		delay, stop := s.backoff.Next()
		if !stop {
			s.endAttempt(OutcomeRetry, err)
			s.invalidate(err)
			s.logger.Info("retrying login", "retry_in", delay)
			s.scheduleLogin(delay + s.set.LoginDelay)
			return
		}
	}

	s.failBoot(err)
}

// credentialFailed handles a provider error other than an abort. The
// provider already had its chance to fetch a fresh credential, so it is
// never treated as a rejected stored credential.
func (s *Session) credentialFailed(err error) {
	s.setLastError(err)
	if !s.booting {
		s.requeueRelog(err)
		return
	}
	s.failBoot(err)
}

// invalidate drops the stored credential after the remote side rejected it.
func (s *Session) invalidate(err error) {
	errutil.LogWarn(s.logger, "credential rejected, requesting a new one", err)
	if ierr := s.creds.Invalidate(s.runCtx, s.id); ierr != nil {
		errutil.LogWarn(s.logger, "failed to invalidate credential", ierr)
	}
}

// requeueRelog sends a failed relog to the back of the queue to start over.
func (s *Session) requeueRelog(err error) {
	s.endAttempt(OutcomeRequeued, err)
	errutil.LogWarn(s.logger, "relog failed, moving to the back of the queue", err)
	if !s.coord.RequeueToBack(s.id.Index) {
		s.coord.Enqueue(s.id.Index)
	}
	s.awaitRelogTurn()
}

// failBoot ends the initial login for good and hands the turn on.
func (s *Session) failBoot(err error) {
	s.endAttempt(OutcomeFailed, err)
	errutil.LogError(s.logger, "login failed, continuing with next account", err)
	s.booting = false
	s.coord.Advance()
	s.stop()
}

// abort handles a provider that declined to produce a credential.
func (s *Session) abort() {
	s.endAttempt(OutcomeAborted, nil)
	s.logger.Warn("login aborted")
	if s.booting {
		s.booting = false
		s.coord.Advance()
	}
	s.coord.Dequeue(s.id.Index)
	s.stop()
}

func (s *Session) superseded(err error) {
	s.logger.Warn("session taken over elsewhere, not relogging", "error", err)
	s.setLastError(err)
	s.endAttempt(OutcomeFailed, err)
	s.flushSummary()
	s.coord.Dequeue(s.id.Index)
	if s.booting {
		s.booting = false
		s.coord.Advance()
	}
	s.stop()
}

// stop parks the session in Idle for the rest of the process.
func (s *Session) stop() {
	s.cancelOp()
	s.gen++
	s.mu.Lock()
	s.terminal = true
	s.mu.Unlock()
	s.setState(Idle)
}

func (s *Session) onCredentialRotated(token string) {
	s.logger.Info("credential renewed by remote, persisting")
	if err := s.creds.Persist(s.runCtx, s.id, token); err != nil {
		s.sideEffectFailed("credential_persist", err)
	}
}

func (s *Session) onMessage(ev remote.Event) {
	s.logger.Info("message received", "sender", ev.Sender, "sender_name", ev.SenderName, "text", ev.Text)
	if s.set.AutoReply == "" {
		return
	}
	s.logger.Info("auto-replying", "sender", ev.Sender)
	if err := s.client.SendMessage(ev.Sender, s.set.AutoReply); err != nil {
		s.sideEffectFailed("auto_reply", err)
	}
}

// flushSummary records the finished online period. It does nothing when no
// period is open.
func (s *Session) flushSummary() {
	s.mu.Lock()
	started := s.startedAt
	activities := s.activities
	s.startedAt = time.Time{}
	s.activities = nil
	s.runID = ulid.ULID{}
	s.mu.Unlock()
	if started.IsZero() {
		return
	}

	end := time.Now()
	s.obs.SessionEnded(s.id.Name, end.Sub(started))
	if s.record != nil {
		s.record.Record(playtime.Summary{
			Account:    s.id.Name,
			Start:      started,
			End:        end,
			Activities: activities,
		})
	}
}

func (s *Session) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.since = time.Now()
	s.mu.Unlock()
	if from != to {
		s.logger.Debug("state changed", "from", from.String(), "to", to.String())
		s.obs.StateChanged(s.id.Name, from, to)
	}
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Session) sideEffectFailed(effect string, err error) {
	errutil.LogWarn(s.logger, "side effect failed", err, "effect", effect)
	s.obs.SideEffectFailed(effect)
}

func (s *Session) startAttempt() {
	_, s.span = s.tracer.Start(s.runCtx, "account.login",
		trace.WithAttributes(
			attribute.String("account", s.id.Name),
			attribute.Int("index", s.id.Index),
			attribute.String("phase", string(s.phase)),
		))
	s.spanStart = time.Now()
}

// endAttempt closes the current attempt span, if any, and counts it.
func (s *Session) endAttempt(outcome Outcome, err error) {
	if s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
	s.span = nil
	s.obs.LoginAttempt(s.phase, outcome)
}

// newBackoff returns the fixed credential retry policy. It never gives up.
func newBackoff(d time.Duration) retry.Backoff {
	if d <= 0 {
		return retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.NewConstant(d)
}

// recoverable reports whether err means the stored credential was rejected
// and a fresh one may succeed.
func recoverable(err error) bool {
	result, ok := remote.ResultOf(err)
	if !ok {
		return false
	}
	switch result {
	case remote.ResultInvalidPassword, remote.ResultAccessDenied, remote.ResultExpired, remote.ResultInvalidSignature:
		return true
	default:
		return false
	}
}
