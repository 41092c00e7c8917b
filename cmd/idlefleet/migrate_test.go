// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/pkg/errutil"
)

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Up() error   { return m.Called().Error(0) }
func (m *mockMigrator) Down() error { return m.Called().Error(0) }
func (m *mockMigrator) Close() error {
	return m.Called().Error(0)
}

func (m *mockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func (m *mockMigrator) Force(version int) error {
	return m.Called(version).Error(0)
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) {
	args := m.Called()
	pending, _ := args.Get(0).([]uint)
	return pending, args.Error(1)
}

// useMigrator swaps migratorFactory for one returning m and records the
// URL it was asked for.
func useMigrator(t *testing.T, m *mockMigrator) *string {
	t.Helper()
	var gotURL string
	orig := migratorFactory
	migratorFactory = func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = orig })
	return &gotURL
}

const testDatabaseURL = "postgres://idlefleet@localhost/idlefleet"

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	_, err := execute(t, "migrate", "up")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrateUp_AppliesPending(t *testing.T) {
	m := &mockMigrator{}
	m.On("PendingMigrations").Return([]uint{1, 2}, nil)
	m.On("Up").Return(nil)
	m.On("Close").Return(nil)
	gotURL := useMigrator(t, m)

	output, err := execute(t, "--database-url", testDatabaseURL, "migrate", "up")
	require.NoError(t, err)

	assert.Equal(t, testDatabaseURL, *gotURL)
	assert.Contains(t, output, "000001_account_tokens")
	assert.Contains(t, output, "000002_account_tokens_updated_at")
	assert.Contains(t, output, "Applied 2 migration(s)")
	m.AssertExpectations(t)
}

func TestMigrateUp_NothingPending(t *testing.T) {
	m := &mockMigrator{}
	m.On("PendingMigrations").Return(nil, nil)
	m.On("Close").Return(nil)
	useMigrator(t, m)

	output, err := execute(t, "--database-url", testDatabaseURL, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, output, "No pending migrations")
	m.AssertNotCalled(t, "Up")
}

func TestMigrateUp_Failure(t *testing.T) {
	m := &mockMigrator{}
	m.On("PendingMigrations").Return([]uint{1}, nil)
	m.On("Up").Return(errors.New("boom"))
	m.On("Close").Return(nil)
	useMigrator(t, m)

	_, err := execute(t, "--database-url", testDatabaseURL, "migrate", "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	m.AssertExpectations(t)
}

func TestMigrateDown(t *testing.T) {
	m := &mockMigrator{}
	m.On("Down").Return(nil)
	m.On("Close").Return(nil)
	useMigrator(t, m)

	output, err := execute(t, "--database-url", testDatabaseURL, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, output, "All migrations rolled back")
}

func TestMigrateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    string
	}{
		{"fresh", 0, false, "No migrations applied"},
		{"clean", 2, false, "Version 2"},
		{"dirty", 2, true, "Version 2 (dirty)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMigrator{}
			m.On("Version").Return(tt.version, tt.dirty, nil)
			m.On("Close").Return(nil)
			useMigrator(t, m)

			output, err := execute(t, "--database-url", testDatabaseURL, "migrate", "version")
			require.NoError(t, err)
			assert.Contains(t, output, tt.want)
		})
	}
}

func TestMigrateForce(t *testing.T) {
	m := &mockMigrator{}
	m.On("Force", 1).Return(nil)
	m.On("Close").Return(nil)
	useMigrator(t, m)

	output, err := execute(t, "--database-url", testDatabaseURL, "migrate", "force", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "Forced version 1")
	m.AssertExpectations(t)
}

func TestMigrateForce_InvalidVersion(t *testing.T) {
	m := &mockMigrator{}
	m.On("Close").Return(nil)
	useMigrator(t, m)

	_, err := execute(t, "--database-url", testDatabaseURL, "migrate", "force", "abc")
	errutil.AssertErrorCode(t, err, "MIGRATION_INVALID_VERSION")
	m.AssertNotCalled(t, "Force", mock.Anything)
}
