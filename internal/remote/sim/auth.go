// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package sim

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/remote"
)

// DefaultTokenTTL is how long issued refresh tokens stay valid.
const DefaultTokenTTL = 200 * 24 * time.Hour

// Authenticator issues signed refresh tokens for any non-empty password.
type Authenticator struct {
	key          []byte
	ttl          time.Duration
	requireGuard bool

	mu    sync.Mutex
	calls map[string]int
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) AuthOption {
	return func(a *Authenticator) {
		a.ttl = ttl
	}
}

// RequireGuardCode makes authentication fail without a guard code.
func RequireGuardCode() AuthOption {
	return func(a *Authenticator) {
		a.requireGuard = true
	}
}

// NewAuthenticator creates an authenticator signing tokens with key.
func NewAuthenticator(key []byte, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		key:   key,
		ttl:   DefaultTokenTTL,
		calls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate implements remote.Authenticator.
func (a *Authenticator) Authenticate(ctx context.Context, accountName, password, guardCode string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", oops.Code("SIM_AUTH_CANCELLED").Wrap(err)
	}

	a.mu.Lock()
	a.calls[accountName]++
	a.mu.Unlock()

	if password == "" {
		return "", remote.NewError(remote.ResultInvalidPassword, "empty password")
	}
	if a.requireGuard && guardCode == "" {
		return "", remote.NewError(remote.ResultAccessDenied, "guard code required")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountName,
		Issuer:    "idlefleet-sim",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", oops.Code("SIM_TOKEN_SIGN_FAILED").With("account", accountName).Wrap(err)
	}
	return signed, nil
}

// Calls returns how often accountName authenticated.
func (a *Authenticator) Calls(accountName string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[accountName]
}
