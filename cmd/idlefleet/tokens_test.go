// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

func TestTokensInvalidate(t *testing.T) {
	store := credential.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "alice", "token-a"))

	var closed bool
	orig := tokenStoreOpener
	t.Cleanup(func() { tokenStoreOpener = orig })
	tokenStoreOpener = func(context.Context, string) (credential.TokenStore, func(), error) {
		return store, func() { closed = true }, nil
	}

	output, err := execute(t, "--database-url", testDatabaseURL, "tokens", "invalidate", "alice", "bob")
	require.NoError(t, err)

	assert.Contains(t, output, "alice: token invalidated")
	assert.Contains(t, output, "bob: no stored token")
	_, err = store.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.True(t, closed)
}

func TestTokensInvalidate_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "tokens", "invalidate", "alice")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestTokensInvalidate_RequiresAccount(t *testing.T) {
	_, err := execute(t, "--database-url", testDatabaseURL, "tokens", "invalidate")
	assert.Error(t, err)
}
