// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

//go:build integration

package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/internal/credential/postgres"
)

var _ = Describe("TokenRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.TokenRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewTokenRepository(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE account_tokens`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports a missing token as not found", func() {
		_, err := repo.Get(ctx, "alice")
		Expect(err).To(MatchError(credential.ErrNotFound))
	})

	It("stores and replaces tokens", func() {
		Expect(repo.Put(ctx, "alice", "one")).To(Succeed())
		Expect(repo.Put(ctx, "alice", "two")).To(Succeed())
		Expect(repo.Put(ctx, "bob", "three")).To(Succeed())

		Expect(repo.Get(ctx, "alice")).To(Equal("two"))
		Expect(repo.Get(ctx, "bob")).To(Equal("three"))
	})

	It("deletes tokens", func() {
		Expect(repo.Put(ctx, "alice", "one")).To(Succeed())
		Expect(repo.Delete(ctx, "alice")).To(Succeed())
		Expect(repo.Delete(ctx, "alice")).To(Succeed())

		_, err := repo.Get(ctx, "alice")
		Expect(err).To(MatchError(credential.ErrNotFound))
	})

	It("is visible to a new repository on the same database", func() {
		Expect(repo.Put(ctx, "alice", "persisted")).To(Succeed())

		reopened := postgres.NewTokenRepository(testPool)
		Expect(reopened.Get(ctx, "alice")).To(Equal("persisted"))
	})
})
