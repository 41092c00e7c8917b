// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/internal/control"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

func startControl(t *testing.T) *control.GRPCServer {
	t.Helper()
	s, err := control.NewGRPCServer("test")
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

func TestStatus_Table(t *testing.T) {
	s := startControl(t)
	s.SetFleetServing(true)
	s.SetAccountServing("alice", true)
	s.SetAccountServing("bob", false)

	output, err := execute(t, "--control-addr", s.Addr(), "status")
	require.NoError(t, err)

	assert.Contains(t, output, "fleet running, 1/2 accounts online")
	assert.Regexp(t, `alice\s+online`, output)
	assert.Regexp(t, `bob\s+offline`, output)
}

func TestStatus_JSON(t *testing.T) {
	s := startControl(t)
	s.SetFleetServing(true)
	s.SetAccountServing("alice", true)

	output, err := execute(t, "--control-addr", s.Addr(), "status", "--json")
	require.NoError(t, err)

	var report control.Report
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.True(t, report.Fleet)
	assert.Equal(t, []control.AccountHealth{{Name: "alice", Serving: true}}, report.Accounts)
}

func TestStatus_DisabledControlServer(t *testing.T) {
	_, err := execute(t, "--control-addr", "", "status")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestStatus_Unreachable(t *testing.T) {
	orig := queryStatus
	t.Cleanup(func() { queryStatus = orig })
	queryStatus = func(context.Context, string) (*control.Report, error) {
		return nil, context.DeadlineExceeded
	}

	_, err := execute(t, "status")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatStatusTable_Empty(t *testing.T) {
	out := formatStatusTable(&control.Report{})
	assert.Contains(t, out, "fleet not running, 0/0 accounts online")
	assert.Contains(t, out, "ACCOUNT")
}
