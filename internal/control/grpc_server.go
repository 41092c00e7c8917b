// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package control serves the fleet's health over the standard gRPC health
// protocol: service "" for the fleet and "account/<name>" per account.
package control

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FleetService is the health service name covering the whole fleet.
const FleetService = ""

const accountPrefix = "account/"

// AccountService returns the health service name for an account.
func AccountService(name string) string {
	return accountPrefix + name
}

// GRPCServer runs the gRPC health control server.
type GRPCServer struct {
	component  string
	startTime  time.Time
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	running    atomic.Bool
}

// NewGRPCServer creates a control server for component. Every service
// starts NOT_SERVING.
func NewGRPCServer(component string) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Code("CONTROL_INVALID").Errorf("component name cannot be empty")
	}
	s := &GRPCServer{
		component: component,
		startTime: time.Now(),
		health:    health.NewServer(),
	}
	s.health.SetServingStatus(FleetService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

// Start begins listening on addr. The returned channel receives the
// server's exit error, or is closed on a graceful stop.
func (s *GRPCServer) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("CONTROL_RUNNING").Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	errCh := make(chan error, 1)
	go func(srv *grpc.Server) {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil {
			slog.Error("control gRPC server error",
				"component", s.component,
				"error", serveErr,
			)
			errCh <- serveErr
		}
	}(s.grpcServer)

	slog.Info("control server started", "component", s.component, "addr", listener.Addr().String())
	return errCh, nil
}

// Stop marks every service NOT_SERVING and shuts the server down, forcing
// it closed when ctx expires first.
func (s *GRPCServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}

	slog.Info("control server stopped", "component", s.component, "uptime", time.Since(s.startTime).Round(time.Second))
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *GRPCServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// SetAccountServing publishes whether the account is online.
func (s *GRPCServer) SetAccountServing(name string, serving bool) {
	s.health.SetServingStatus(AccountService(name), status(serving))
}

// SetFleetServing publishes whether the fleet is running.
func (s *GRPCServer) SetFleetServing(serving bool) {
	s.health.SetServingStatus(FleetService, status(serving))
}

func status(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// accountName reverses AccountService.
func accountName(service string) (string, bool) {
	return strings.CutPrefix(service, accountPrefix)
}
