// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package fleet builds one account session per configured identity and runs
// them against a shared admission coordinator.
package fleet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/account"
	"github.com/idlefleet/idlefleet/internal/config"
	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/internal/logging"
	"github.com/idlefleet/idlefleet/internal/proxy"
	"github.com/idlefleet/idlefleet/internal/remote"
	"github.com/idlefleet/idlefleet/internal/scheduler"
)

// Observer receives both per-account and shared admission events.
type Observer interface {
	account.Observer
	scheduler.Observer
}

// HealthPublisher exposes per-account serving status.
type HealthPublisher interface {
	SetAccountServing(name string, serving bool)
	SetFleetServing(serving bool)
}

// Deps are the collaborators shared by every session. Clients and
// Credentials are required.
type Deps struct {
	Clients     remote.Factory
	Credentials credential.Provider
	Playtime    account.Recorder
	Stats       account.StatsRefresher
	Observer    Observer
	Health      HealthPublisher
	Logger      *slog.Logger
}

// Fleet owns the coordinator and every account session.
type Fleet struct {
	coord    *scheduler.Coordinator
	sessions []*account.Session
	health   HealthPublisher
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a session for each of accounts. An account's position in the
// slice is its login index; proxies are assigned from cfg.Proxies by index.
func New(cfg *config.Config, accounts []config.Account, deps Deps) (*Fleet, error) {
	if deps.Clients == nil {
		return nil, oops.Code("FLEET_INVALID").Errorf("remote client factory is required")
	}
	if deps.Credentials == nil {
		return nil, oops.Code("FLEET_INVALID").Errorf("credential provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	resolver, err := config.NewActivityResolver(cfg.Activities)
	if err != nil {
		return nil, oops.Code("FLEET_INVALID").Wrap(err)
	}

	f := &Fleet{
		health: deps.Health,
		logger: deps.Logger,
	}

	var coordOpts []scheduler.Option
	var obs account.Observer = account.NopObserver{}
	if deps.Observer != nil {
		coordOpts = append(coordOpts, scheduler.WithObserver(deps.Observer))
		obs = deps.Observer
	}
	if deps.Health != nil {
		obs = healthObserver{Observer: obs, health: deps.Health}
	}
	f.coord = scheduler.NewCoordinator(coordOpts...)

	settings := account.Settings{
		LoginDelay:   cfg.LoginDelay,
		RelogDelay:   cfg.RelogDelay,
		RetryDelay:   cfg.CredentialRetryDelay,
		OnlineStatus: cfg.OnlineStatus,
		AutoReply:    cfg.AutoReply,
		StatsTimeout: cfg.Stats.Timeout,
	}

	for i, acc := range accounts {
		id := credential.Identity{
			Index:        i,
			Name:         acc.Name,
			Password:     acc.Password,
			SharedSecret: acc.SharedSecret,
		}
		addr := proxy.Assign(i, cfg.Proxies)
		set := settings
		set.Activities = resolver.For(acc.Name)

		s, err := account.New(id, addr, set, account.Deps{
			Coordinator: f.coord,
			Credentials: deps.Credentials,
			Client:      deps.Clients(acc.Name, addr),
			Playtime:    deps.Playtime,
			Stats:       deps.Stats,
			Observer:    obs,
			Logger:      logging.ForAccount(deps.Logger, acc.Name, i),
		})
		if err != nil {
			return nil, oops.With("account", acc.Name).Wrap(err)
		}
		f.sessions = append(f.sessions, s)
	}
	return f, nil
}

// Run starts every session and blocks until ctx is cancelled and all
// sessions have stopped.
func (f *Fleet) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return oops.Code("FLEET_RUNNING").Errorf("fleet is already running")
	}
	f.running = true
	f.mu.Unlock()

	if len(f.sessions) == 0 {
		f.logger.Warn("no accounts configured")
	}
	f.logger.Info("starting fleet", "accounts", len(f.sessions))
	if f.health != nil {
		for _, s := range f.sessions {
			f.health.SetAccountServing(s.Name(), false)
		}
		f.health.SetFleetServing(true)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, s := range f.sessions {
		wg.Add(1)
		go func(s *account.Session) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				f.logger.Error("session stopped with error", "account", s.Name(), "error", err)
			}
		}(s)
	}

	<-ctx.Done()
	wg.Wait()
	if f.health != nil {
		f.health.SetFleetServing(false)
	}
	f.logger.Info("fleet stopped", "uptime", time.Since(start).Round(time.Second))
	return nil
}

// Coordinator returns the fleet's shared admission state.
func (f *Fleet) Coordinator() *scheduler.Coordinator { return f.coord }

// Size returns the number of accounts.
func (f *Fleet) Size() int { return len(f.sessions) }

// Snapshot returns the status of every account in login order.
func (f *Fleet) Snapshot() []account.Status {
	out := make([]account.Status, len(f.sessions))
	for i, s := range f.sessions {
		out[i] = s.Status()
	}
	return out
}

// Ready reports whether every account has had its initial admission turn.
func (f *Fleet) Ready() bool {
	return f.coord.Next() >= len(f.sessions)
}

// healthObserver mirrors Online transitions into the health publisher.
type healthObserver struct {
	account.Observer
	health HealthPublisher
}

func (o healthObserver) StateChanged(name string, from, to account.State) {
	o.Observer.StateChanged(name, from, to)
	o.health.SetAccountServing(name, to == account.Online)
}
