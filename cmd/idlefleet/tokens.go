// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"errors"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/idlefleet/idlefleet/internal/credential"
)

// tokenStoreOpener opens the configured token store; tests replace it.
var tokenStoreOpener = openTokenStore

func newTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage stored refresh tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <account>...",
		Short: "Delete stored refresh tokens",
		Long: `Delete the stored refresh token of each named account so the next login
authenticates with the password again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTokensInvalidate,
	})
	return cmd
}

func runTokensInvalidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Tokens.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("tokens.database_url (or --database-url) is required; in-memory tokens die with the fleet")
	}

	tokens, closeTokens, err := tokenStoreOpener(cmd.Context(), cfg.Tokens.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeTokens()

	for _, name := range args {
		_, err := tokens.Get(cmd.Context(), name)
		if errors.Is(err, credential.ErrNotFound) {
			cmd.Printf("%s: no stored token\n", name)
			continue
		}
		if err != nil {
			return oops.With("account", name).Wrap(err)
		}
		if err := tokens.Delete(cmd.Context(), name); err != nil {
			return oops.With("account", name).Wrap(err)
		}
		cmd.Printf("%s: token invalidated\n", name)
	}
	return nil
}
