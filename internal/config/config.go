// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package config loads the fleet's static runtime parameters. A Config is
// built once at startup and treated as read-only afterwards.
package config

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeInvalid is the oops code of every validation failure.
const CodeInvalid = "CONFIG_INVALID"

// SupportedVersions is the config file versions this build understands.
const SupportedVersions = ">= 1.0, < 2.0"

// Default values.
const (
	DefaultVersion              = "1.0"
	DefaultLoginDelay           = 2500 * time.Millisecond
	DefaultRelogDelay           = 15 * time.Second
	DefaultCredentialRetryDelay = 5 * time.Second
	DefaultPlaytimeFile         = "playtime.txt"
	DefaultStatsEndpoint        = "https://steamladder.com/api/v2"
	DefaultStatsTimeout         = 10 * time.Second
	DefaultLogFormat            = "json"
	DefaultLogLevel             = "info"
	DefaultMetricsAddr          = "127.0.0.1:9110"
	DefaultControlAddr          = "127.0.0.1:9111"
	DefaultBackend              = "sim"
)

// Config is the complete runtime configuration.
type Config struct {
	Version              string        `koanf:"version" json:"version,omitempty" jsonschema:"description=Config file version (semver)"`
	LoginDelay           time.Duration `koanf:"login_delay" json:"login_delay,omitempty" jsonschema:"type=string,description=Delay between an admission turn and the logon attempt"`
	RelogDelay           time.Duration `koanf:"relog_delay" json:"relog_delay,omitempty" jsonschema:"type=string,description=Delay before a disconnected account starts waiting for its relog turn"`
	CredentialRetryDelay time.Duration `koanf:"credential_retry_delay" json:"credential_retry_delay,omitempty" jsonschema:"type=string,description=Fixed backoff before retrying a rejected credential"`
	OnlineStatus         int           `koanf:"online_status" json:"online_status,omitempty" jsonschema:"minimum=0,maximum=7,description=Presence set after logon (0 leaves it unchanged)"`
	Activities           Activities    `koanf:"activities" json:"activities,omitempty"`
	AutoReply            string        `koanf:"auto_reply" json:"auto_reply,omitempty" jsonschema:"description=Reply sent to incoming messages (empty disables)"`
	Playtime             Playtime      `koanf:"playtime" json:"playtime,omitempty"`
	Stats                Stats         `koanf:"stats" json:"stats,omitempty"`
	Proxies              []string      `koanf:"proxies" json:"proxies,omitempty" jsonschema:"description=Outbound proxies spread over accounts by index"`
	Accounts             []Account     `koanf:"accounts" json:"accounts,omitempty"`
	AccountsFile         string        `koanf:"accounts_file" json:"accounts_file,omitempty" jsonschema:"description=File of name:password[:shared_secret] lines"`
	Tokens               Tokens        `koanf:"tokens" json:"tokens,omitempty"`
	Remote               Remote        `koanf:"remote" json:"remote,omitempty"`
	Log                  Log           `koanf:"log" json:"log,omitempty"`
	MetricsAddr          string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Metrics and health HTTP address (empty disables)"`
	ControlAddr          string        `koanf:"control_addr" json:"control_addr,omitempty" jsonschema:"description=gRPC health control address (empty disables)"`
}

// Account is one inline account identity.
type Account struct {
	Name         string `koanf:"name" json:"name" jsonschema:"minLength=1"`
	Password     string `koanf:"password" json:"password,omitempty"`
	SharedSecret string `koanf:"shared_secret" json:"shared_secret,omitempty"`
}

// Activities declares what accounts do while online.
type Activities struct {
	Default   []ActivityID `koanf:"default" json:"default,omitempty"`
	Overrides []Override   `koanf:"overrides" json:"overrides,omitempty"`
}

// Override replaces the default activities for accounts whose name matches
// the glob pattern Match.
type Override struct {
	Match      string       `koanf:"match" json:"match" jsonschema:"minLength=1"`
	Activities []ActivityID `koanf:"activities" json:"activities"`
}

// Playtime controls the session summary log.
type Playtime struct {
	Enabled bool   `koanf:"enabled" json:"enabled,omitempty"`
	File    string `koanf:"file" json:"file,omitempty"`
}

// Stats configures the external stats refresh endpoint.
type Stats struct {
	APIKey   string        `koanf:"api_key" json:"api_key,omitempty"`
	Endpoint string        `koanf:"endpoint" json:"endpoint,omitempty"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout,omitempty" jsonschema:"type=string"`
}

// Tokens configures refresh token persistence.
type Tokens struct {
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL URL; empty keeps tokens in memory"`
}

// Remote selects the remote backend.
type Remote struct {
	Backend      string        `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=sim"`
	SimLatency   time.Duration `koanf:"sim_latency" json:"sim_latency,omitempty" jsonschema:"type=string"`
	SimDropAfter time.Duration `koanf:"sim_drop_after" json:"sim_drop_after,omitempty" jsonschema:"type=string"`
	SimTokenKey  string        `koanf:"sim_token_key" json:"sim_token_key,omitempty"`
}

// Log configures logging.
type Log struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Version:              DefaultVersion,
		LoginDelay:           DefaultLoginDelay,
		RelogDelay:           DefaultRelogDelay,
		CredentialRetryDelay: DefaultCredentialRetryDelay,
		Playtime: Playtime{
			Enabled: true,
			File:    DefaultPlaytimeFile,
		},
		Stats: Stats{
			Endpoint: DefaultStatsEndpoint,
			Timeout:  DefaultStatsTimeout,
		},
		Remote: Remote{
			Backend: DefaultBackend,
		},
		Log: Log{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
		MetricsAddr: DefaultMetricsAddr,
		ControlAddr: DefaultControlAddr,
	}
}

// Validate checks the configuration for values the fleet cannot run with.
func (c *Config) Validate() error {
	if err := checkVersion(c.Version); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"login_delay":            c.LoginDelay,
		"relog_delay":            c.RelogDelay,
		"credential_retry_delay": c.CredentialRetryDelay,
		"stats.timeout":          c.Stats.Timeout,
	} {
		if d < 0 {
			return invalid(name, "must not be negative")
		}
	}
	if c.OnlineStatus < 0 || c.OnlineStatus > 7 {
		return invalid("online_status", "must be between 0 and 7")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be one of debug, info, warn, error")
	}
	if c.Remote.Backend != "sim" {
		return invalid("remote.backend", "unsupported backend")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, acc := range c.Accounts {
		if acc.Name == "" {
			return oops.Code(CodeInvalid).With("field", "accounts").With("position", i).
				Errorf("account %d has no name", i)
		}
		if seen[acc.Name] {
			return oops.Code(CodeInvalid).With("field", "accounts").With("account", acc.Name).
				Errorf("account %q is listed twice", acc.Name)
		}
		seen[acc.Name] = true
	}

	for _, o := range c.Activities.Overrides {
		if _, err := glob.Compile(o.Match); err != nil {
			return oops.Code(CodeInvalid).With("field", "activities.overrides").With("match", o.Match).
				Wrapf(err, "invalid override pattern")
		}
	}
	return nil
}

func checkVersion(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return oops.Code(CodeInvalid).With("field", "version").With("version", version).
			Wrapf(err, "version is not a semantic version")
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.Code(CodeInvalid).Wrap(err)
	}
	if !constraint.Check(v) {
		return oops.Code(CodeInvalid).With("field", "version").With("version", version).
			Errorf("config version %s is not supported (want %s)", version, SupportedVersions)
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code(CodeInvalid).With("field", field).Errorf("%s %s", field, msg)
}
