// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/idlefleet/idlefleet/internal/config"
	"github.com/idlefleet/idlefleet/internal/control"
	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/internal/credential/postgres"
	"github.com/idlefleet/idlefleet/internal/fleet"
	"github.com/idlefleet/idlefleet/internal/guardcode"
	"github.com/idlefleet/idlefleet/internal/logging"
	"github.com/idlefleet/idlefleet/internal/observability"
	"github.com/idlefleet/idlefleet/internal/playtime"
	"github.com/idlefleet/idlefleet/internal/remote"
	"github.com/idlefleet/idlefleet/internal/remote/sim"
	"github.com/idlefleet/idlefleet/internal/stats"
	"github.com/idlefleet/idlefleet/internal/xdg"
)

const (
	serviceName     = "idlefleet"
	shutdownTimeout = 5 * time.Second

	// defaultSimTokenKey signs simulated refresh tokens when no key is set.
	defaultSimTokenKey = "idlefleet-sim"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the account fleet",
		Long: `Log every configured account in, one at a time in configuration order,
and keep them online until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithDeps(cmd.Context(), cmd, nil)
		},
	}
}

// runWithDeps runs the fleet with injectable dependencies.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cmd *cobra.Command, deps *RunDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.TokenStoreFactory == nil {
		deps.TokenStoreFactory = openTokenStore
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = newBackend
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(component string) (ControlServer, error) {
			return control.NewGRPCServer(component)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.CodeInput == nil {
		deps.CodeInput = os.Stdin
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, level)

	accounts, err := cfg.AllAccounts()
	if err != nil {
		return err
	}
	logger.Info("starting fleet process",
		"accounts", len(accounts),
		"proxies", len(cfg.Proxies),
		"backend", cfg.Remote.Backend,
	)

	tokens, closeTokens, err := deps.TokenStoreFactory(ctx, cfg.Tokens.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeTokens()

	clientFactory, auth, err := deps.BackendFactory(cfg)
	if err != nil {
		return err
	}
	clients := &clientTracker{factory: clientFactory}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var f *fleet.Fleet
	obsServer := deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
		return f != nil && f.Ready()
	})
	observer := observability.NewObserver(obsServer.Metrics())
	observer.Track(len(accounts))

	provider := credential.NewTokenProvider(tokens, auth,
		credential.WithCodeSource(guardcode.NewPrompter(deps.CodeInput, cmd.ErrOrStderr(), logger)),
		credential.WithLogger(logger),
	)

	fleetDeps := fleet.Deps{
		Clients:     clients.create,
		Credentials: provider,
		Observer:    observer,
		Logger:      logger,
	}

	if cfg.Playtime.Enabled {
		writer := playtime.NewWriter(playtimePath(cfg.Playtime.File), logger, playtime.WithFailureReporter(observer))
		// The writer outlives the fleet so the final summaries are written.
		writer.Start(context.WithoutCancel(ctx))
		defer writer.Close()
		fleetDeps.Playtime = writer
	}
	if refresher := stats.NewRefresher(cfg.Stats.Endpoint, cfg.Stats.APIKey, cfg.Stats.Timeout, nil); refresher.Enabled() {
		fleetDeps.Stats = refresher
	}

	var controlServer ControlServer
	if cfg.ControlAddr != "" {
		controlServer, err = deps.ControlServerFactory(serviceName)
		if err != nil {
			return oops.Code("CONTROL_START_FAILED").Wrap(err)
		}
		controlErrChan, err := controlServer.Start(cfg.ControlAddr)
		if err != nil {
			return oops.Code("CONTROL_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, controlErrChan, "control-grpc")
		fleetDeps.Health = controlServer
	}
	defer func() {
		if controlServer == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := controlServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping control gRPC server", "error", err)
		}
	}()

	f, err = fleet.New(cfg, accounts, fleetDeps)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fleetDone := make(chan error, 1)
	go func() {
		fleetDone <- f.Run(ctx)
	}()

	cmd.Println("Fleet started")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	runErr := <-fleetDone
	clients.closeAll()
	logger.Info("shutdown complete")
	return runErr
}

// openTokenStore connects to PostgreSQL when a URL is configured, retrying
// with exponential backoff, and falls back to memory otherwise.
func openTokenStore(ctx context.Context, databaseURL string) (credential.TokenStore, func(), error) {
	if databaseURL == "" {
		slog.Info("no database configured, refresh tokens are kept in memory")
		return credential.NewMemoryStore(), func() {}, nil
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	var repo *postgres.TokenRepository
	var closePool func()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pool, err := postgres.Connect(ctx, databaseURL)
		if err != nil {
			slog.Warn("database not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		repo = postgres.NewTokenRepository(pool)
		closePool = pool.Close
		return nil
	})
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	slog.Info("connected to token database")
	return repo, closePool, nil
}

// newBackend returns the remote backend selected by the config.
func newBackend(cfg *config.Config) (remote.Factory, remote.Authenticator, error) {
	switch cfg.Remote.Backend {
	case "sim":
		key := cfg.Remote.SimTokenKey
		if key == "" {
			key = defaultSimTokenKey
		}
		opts := sim.Options{
			Latency:   cfg.Remote.SimLatency,
			DropAfter: cfg.Remote.SimDropAfter,
		}
		return sim.NewFactory(opts), sim.NewAuthenticator([]byte(key)), nil
	default:
		return nil, nil, oops.Code(config.CodeInvalid).With("backend", cfg.Remote.Backend).
			Errorf("unsupported remote backend %q", cfg.Remote.Backend)
	}
}

// playtimePath resolves a relative playtime file against the state
// directory.
func playtimePath(file string) string {
	if file == "" {
		file = config.DefaultPlaytimeFile
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(xdg.StateDir(), file)
}

// clientTracker remembers every client it creates so they can be released
// after the fleet stops.
type clientTracker struct {
	factory remote.Factory

	mu      sync.Mutex
	created []remote.Client
}

func (t *clientTracker) create(accountName, proxy string) remote.Client {
	c := t.factory(accountName, proxy)
	t.mu.Lock()
	t.created = append(t.created, c)
	t.mu.Unlock()
	return c
}

func (t *clientTracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.created {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// monitorServerErrors cancels ctx when a server fails. It exits when an
// error arrives, the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
