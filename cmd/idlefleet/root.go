// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/idlefleet/idlefleet/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the idlefleet CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idlefleet",
		Short: "idlefleet - keep a fleet of accounts online",
		Long: `idlefleet logs a fleet of accounts into a rate-limited remote service
one at a time, keeps them online and brings them back in order after
connection losses.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/idlefleet/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newTokensCmd())

	return cmd
}

// loadConfig loads the config named by --config, falling back to the
// default location, with cmd's flags layered on top.
func loadConfig(cmd *cobra.Command) (*config.Config, *koanf.Koanf, error) {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path, cmd.Flags())
}
