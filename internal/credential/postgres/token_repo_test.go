// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

func TestTokenRepository_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      string
		wantCode  string
		notFound  bool
	}{
		{
			name: "stored token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT token FROM account_tokens WHERE account_name = \$1`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow("tok"))
			},
			want: "tok",
		},
		{
			name: "no row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT token FROM account_tokens`).
					WithArgs("alice").
					WillReturnError(pgx.ErrNoRows)
			},
			wantCode: "TOKEN_NOT_FOUND",
			notFound: true,
		},
		{
			name: "unmigrated schema",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT token FROM account_tokens`).
					WithArgs("alice").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})
			},
			wantCode: "TOKEN_SCHEMA_MISSING",
		},
		{
			name: "connection error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT token FROM account_tokens`).
					WithArgs("alice").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "TOKEN_QUERY_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewTokenRepository(mock)
			got, err := repo.Get(context.Background(), "alice")

			if tt.wantCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				assert.Equal(t, tt.notFound, errors.Is(err, credential.ErrNotFound))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTokenRepository_Put(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO account_tokens`).
		WithArgs("alice", "tok").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO account_tokens`).
		WithArgs("bob", "tok").
		WillReturnError(errors.New("disk full"))

	repo := NewTokenRepository(mock)
	require.NoError(t, repo.Put(context.Background(), "alice", "tok"))

	err = repo.Put(context.Background(), "bob", "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TOKEN_QUERY_FAILED")
	errutil.AssertErrorContext(t, err, "account", "bob")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM account_tokens WHERE account_name = \$1`).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM account_tokens`).
		WithArgs("alice").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})

	repo := NewTokenRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), "alice"))

	err = repo.Delete(context.Background(), "alice")
	errutil.AssertErrorCode(t, err, "TOKEN_SCHEMA_MISSING")
	assert.NoError(t, mock.ExpectationsWereMet())
}
