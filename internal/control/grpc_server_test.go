// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/idlefleet/idlefleet/internal/fleet"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

var _ fleet.HealthPublisher = (*GRPCServer)(nil)

func startServer(t *testing.T) *GRPCServer {
	t.Helper()
	s, err := NewGRPCServer("test")
	require.NoError(t, err)
	_, err = s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func healthClient(t *testing.T, addr string) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestNewGRPCServer_EmptyComponent(t *testing.T) {
	_, err := NewGRPCServer("")
	errutil.AssertErrorCode(t, err, "CONTROL_INVALID")
}

func TestAccountService(t *testing.T) {
	assert.Equal(t, "account/alice", AccountService("alice"))

	name, ok := accountName("account/alice")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = accountName("other")
	assert.False(t, ok)
}

func TestGRPCServer_CheckReflectsPublishedStatus(t *testing.T) {
	s := startServer(t)
	client := healthClient(t, s.Addr())
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: FleetService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus(), "fleet starts not serving")

	s.SetFleetServing(true)
	s.SetAccountServing("alice", true)
	s.SetAccountServing("bob", false)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: FleetService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: AccountService("alice")})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: AccountService("bob")})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: AccountService("carol")})
	assert.Error(t, err, "unknown accounts are not found")
}

func TestQueryStatus(t *testing.T) {
	s := startServer(t)
	s.SetFleetServing(true)
	s.SetAccountServing("bob", true)
	s.SetAccountServing("alice", false)
	s.SetAccountServing("carol", true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := QueryStatus(ctx, s.Addr())
	require.NoError(t, err)

	assert.True(t, report.Fleet)
	assert.Equal(t, []AccountHealth{
		{Name: "alice", Serving: false},
		{Name: "bob", Serving: true},
		{Name: "carol", Serving: true},
	}, report.Accounts)
	assert.Equal(t, 2, report.Online())
}

func TestQueryStatus_Unreachable(t *testing.T) {
	s := startServer(t)
	addr := s.Addr()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	qctx, qcancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer qcancel()
	_, err := QueryStatus(qctx, addr)
	errutil.AssertErrorCode(t, err, "CONTROL_QUERY_FAILED")
}

func TestGRPCServer_DoubleStartFails(t *testing.T) {
	s := startServer(t)
	_, err := s.Start("127.0.0.1:0")
	errutil.AssertErrorCode(t, err, "CONTROL_RUNNING")
}

func TestGRPCServer_StopIdempotent(t *testing.T) {
	s, err := NewGRPCServer("test")
	require.NoError(t, err)
	assert.NoError(t, s.Stop(context.Background()), "stop without start")

	s = startServer(t)
	assert.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestGRPCServer_StopClosesErrorChannel(t *testing.T) {
	s, err := NewGRPCServer("test")
	require.NoError(t, err)
	errCh, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}
