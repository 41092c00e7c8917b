// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/remote"
)

// DefaultExpiryMargin is how long before its expiry a stored token is
// considered stale.
const DefaultExpiryMargin = time.Hour

// CodeSource delivers one-time guard codes out of band, for identities
// without a shared secret. Returning ErrAborted (or an empty code) aborts
// the login.
type CodeSource interface {
	Code(ctx context.Context, accountName string) (string, error)
}

// TokenProvider reuses stored tokens until they are about to expire and
// otherwise authenticates for a new one.
type TokenProvider struct {
	store  TokenStore
	auth   remote.Authenticator
	codes  CodeSource
	logger *slog.Logger
	margin time.Duration
	now    func() time.Time
}

// TokenProviderOption configures a TokenProvider.
type TokenProviderOption func(*TokenProvider)

// WithCodeSource sets where guard codes come from when an identity has no
// shared secret.
func WithCodeSource(codes CodeSource) TokenProviderOption {
	return func(p *TokenProvider) {
		p.codes = codes
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TokenProviderOption {
	return func(p *TokenProvider) {
		p.logger = logger
	}
}

// WithExpiryMargin overrides DefaultExpiryMargin.
func WithExpiryMargin(d time.Duration) TokenProviderOption {
	return func(p *TokenProvider) {
		p.margin = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) TokenProviderOption {
	return func(p *TokenProvider) {
		p.now = now
	}
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(store TokenStore, auth remote.Authenticator, opts ...TokenProviderOption) *TokenProvider {
	p := &TokenProvider{
		store:  store,
		auth:   auth,
		logger: slog.Default(),
		margin: DefaultExpiryMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Provider = (*TokenProvider)(nil)

// Credential implements Provider.
func (p *TokenProvider) Credential(ctx context.Context, id Identity) (string, error) {
	token, err := p.store.Get(ctx, id.Name)
	switch {
	case err == nil:
		if p.usable(token) {
			return token, nil
		}
		p.logger.Info("stored token expired, requesting a new one", "account", id.Name)
	case errors.Is(err, ErrNotFound):
		p.logger.Debug("no stored token", "account", id.Name)
	default:
		return "", oops.Code("TOKEN_LOAD_FAILED").With("account", id.Name).Wrap(err)
	}

	token, err = p.authenticate(ctx, id)
	if err != nil {
		return "", err
	}
	if err := p.store.Put(ctx, id.Name, token); err != nil {
		// the token is still good for this attempt
		p.logger.Warn("failed to store new token", "account", id.Name, "error", err)
	}
	return token, nil
}

func (p *TokenProvider) authenticate(ctx context.Context, id Identity) (string, error) {
	token, err := p.auth.Authenticate(ctx, id.Name, id.Password, id.GuardCode)
	if err == nil {
		return token, nil
	}
	result, ok := remote.ResultOf(err)
	if !ok || result != remote.ResultAccessDenied || id.GuardCode != "" || id.SharedSecret != "" || p.codes == nil {
		return "", oops.Code("AUTHENTICATE_FAILED").With("account", id.Name).Wrap(err)
	}

	// The remote side wants a guard code we cannot generate.
	code, err := p.codes.Code(ctx, id.Name)
	if errors.Is(err, ErrAborted) || (err == nil && code == "") {
		return "", ErrAborted
	}
	if err != nil {
		return "", oops.Code("GUARD_CODE_FAILED").With("account", id.Name).Wrap(err)
	}
	token, err = p.auth.Authenticate(ctx, id.Name, id.Password, code)
	if err != nil {
		return "", oops.Code("AUTHENTICATE_FAILED").With("account", id.Name).With("guard_code", true).Wrap(err)
	}
	return token, nil
}

// usable reports whether token's exp claim is further away than the margin.
// Tokens without a readable exp claim are treated as expired.
func (p *TokenProvider) usable(token string) bool {
	exp, err := Expiry(token)
	if err != nil {
		p.logger.Debug("unreadable token", "error", err)
		return false
	}
	return exp.After(p.now().Add(p.margin))
}

// Invalidate implements Provider.
func (p *TokenProvider) Invalidate(ctx context.Context, id Identity) error {
	if err := p.store.Delete(ctx, id.Name); err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").With("account", id.Name).Wrap(err)
	}
	return nil
}

// Persist implements Provider.
func (p *TokenProvider) Persist(ctx context.Context, id Identity, token string) error {
	if err := p.store.Put(ctx, id.Name, token); err != nil {
		return oops.Code("TOKEN_PERSIST_FAILED").With("account", id.Name).Wrap(err)
	}
	return nil
}

// Expiry reads the exp claim of a JWT refresh token without verifying its
// signature. The remote side verifies; this only decides when to renew.
func Expiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, oops.Code("TOKEN_MALFORMED").Wrap(err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, oops.Code("TOKEN_MALFORMED").Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
