// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package credential supplies the refresh tokens accounts log on with.
package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted is returned by a Provider when the login attempt should be
// abandoned. The account stays idle and is not retried automatically.
var ErrAborted = errors.New("credential: login aborted")

// ErrNotFound is returned by a TokenStore without a token for the account.
var ErrNotFound = errors.New("credential: token not found")

// Identity is the static identity of one account.
type Identity struct {
	// Index is the account's position in the login order.
	Index        int
	Name         string
	Password     string
	SharedSecret string
	// GuardCode is the current one-time code, regenerated before every
	// attempt when SharedSecret is set.
	GuardCode string
}

// Provider supplies credentials for logon attempts.
type Provider interface {
	// Credential returns a token for id, or ErrAborted.
	Credential(ctx context.Context, id Identity) (string, error)
	// Invalidate forgets the stored token so the next Credential call
	// obtains a fresh one.
	Invalidate(ctx context.Context, id Identity) error
	// Persist stores a token the remote side rotated.
	Persist(ctx context.Context, id Identity, token string) error
}

// TokenStore persists one token per account name.
type TokenStore interface {
	Get(ctx context.Context, accountName string) (string, error)
	Put(ctx context.Context, accountName, token string) error
	Delete(ctx context.Context, accountName string) error
}

// MemoryStore is a TokenStore that lives as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// Get implements TokenStore.
func (s *MemoryStore) Get(_ context.Context, accountName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[accountName]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// Put implements TokenStore.
func (s *MemoryStore) Put(_ context.Context, accountName, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[accountName] = token
	return nil
}

// Delete implements TokenStore. Deleting a missing token is not an error.
func (s *MemoryStore) Delete(_ context.Context, accountName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, accountName)
	return nil
}
