// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"context"
	"io"

	"github.com/idlefleet/idlefleet/internal/config"
	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/internal/observability"
	"github.com/idlefleet/idlefleet/internal/remote"
)

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// TokenStoreFactory opens the refresh token store. The returned func
	// releases it.
	// Default: openTokenStore
	TokenStoreFactory func(ctx context.Context, databaseURL string) (credential.TokenStore, func(), error)

	// BackendFactory creates the remote client factory and authenticator
	// for the configured backend.
	// Default: newBackend
	BackendFactory func(cfg *config.Config) (remote.Factory, remote.Authenticator, error)

	// ControlServerFactory creates a control gRPC server.
	// Default: control.NewGRPCServer
	ControlServerFactory func(component string) (ControlServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// CodeInput supplies one-time codes typed by the operator.
	// Default: os.Stdin
	CodeInput io.Reader
}

// ControlServer interface wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string) (<-chan error, error)
	Stop(ctx context.Context) error
	SetAccountServing(name string, serving bool)
	SetFleetServing(serving bool)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
