// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/idlefleet/idlefleet/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a config file",
		Long: `Check a config file against the config schema, then load it and run the
semantic checks the fleet applies at startup. Defaults to --config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultPath()
	}
	if path == "" {
		return oops.Code("CONFIG_NOT_FOUND").Errorf("no config file given and none found at the default location")
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
	}
	if err := config.ValidateSchema(data); err != nil {
		return err
	}

	cfg, _, err := config.Load(path, nil)
	if err != nil {
		return err
	}
	accounts, err := cfg.AllAccounts()
	if err != nil {
		return err
	}

	cmd.Printf("%s is valid (%d accounts, %d proxies)\n", path, len(accounts), len(cfg.Proxies))
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  `Print defaults, config file and flags merged, with secrets redacted.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	_, k, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(config.Effective(k))
	if err != nil {
		return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	cmd.Print(string(out))
	return nil
}
