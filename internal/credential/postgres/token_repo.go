// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package postgres stores refresh tokens in PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/credential"
)

// poolIface is the subset of pgxpool.Pool the repository uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TokenRepository implements credential.TokenStore on the account_tokens
// table.
type TokenRepository struct {
	pool poolIface
}

var _ credential.TokenStore = (*TokenRepository)(nil)

// NewTokenRepository creates a TokenRepository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Connect opens a pool for databaseURL and verifies it is reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Get implements credential.TokenStore.
func (r *TokenRepository) Get(ctx context.Context, accountName string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx,
		`SELECT token FROM account_tokens WHERE account_name = $1`,
		accountName).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("TOKEN_NOT_FOUND").With("account", accountName).Wrap(credential.ErrNotFound)
	}
	if err != nil {
		return "", wrap(err, "get token", accountName)
	}
	return token, nil
}

// Put implements credential.TokenStore.
func (r *TokenRepository) Put(ctx context.Context, accountName, token string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO account_tokens (account_name, token, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (account_name) DO UPDATE SET token = $2, updated_at = NOW()`,
		accountName, token)
	if err != nil {
		return wrap(err, "put token", accountName)
	}
	return nil
}

// Delete implements credential.TokenStore.
func (r *TokenRepository) Delete(ctx context.Context, accountName string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM account_tokens WHERE account_name = $1`, accountName)
	if err != nil {
		return wrap(err, "delete token", accountName)
	}
	return nil
}

// wrap reports a missing table as an unmigrated schema.
func wrap(err error, operation, accountName string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code("TOKEN_SCHEMA_MISSING").
			With("operation", operation).
			With("account", accountName).
			Hint("run 'idlefleet migrate up'").
			Wrap(err)
	}
	return oops.Code("TOKEN_QUERY_FAILED").
		With("operation", operation).
		With("account", accountName).
		Wrap(err)
}
