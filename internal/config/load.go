// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/idlefleet/idlefleet/internal/xdg"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"login-delay":   "login_delay",
	"relog-delay":   "relog_delay",
	"accounts-file": "accounts_file",
	"database-url":  "tokens.database_url",
	"playtime-file": "playtime.file",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"metrics-addr":  "metrics_addr",
	"control-addr":  "control_addr",
	"backend":       "remote.backend",
}

// RegisterFlags adds the config-overriding flags.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Duration("login-delay", d.LoginDelay, "delay between an admission turn and the logon attempt")
	flags.Duration("relog-delay", d.RelogDelay, "delay before a disconnected account waits for its relog turn")
	flags.String("accounts-file", "", "file of name:password[:shared_secret] lines")
	flags.String("database-url", "", "PostgreSQL URL for refresh tokens (empty keeps them in memory)")
	flags.String("playtime-file", d.Playtime.File, "session summary log file")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("control-addr", d.ControlAddr, "gRPC health control address (empty = disabled)")
	flags.String("backend", d.Remote.Backend, "remote backend (sim)")
}

// defaults is a koanf provider serving Default() as a nested map.
type defaults struct{}

func (defaults) ReadBytes() ([]byte, error) {
	return nil, errors.New("defaults provider does not support ReadBytes")
}

func (defaults) Read() (map[string]any, error) {
	d := Default()
	return map[string]any{
		"version":                d.Version,
		"login_delay":            d.LoginDelay,
		"relog_delay":            d.RelogDelay,
		"credential_retry_delay": d.CredentialRetryDelay,
		"online_status":          d.OnlineStatus,
		"auto_reply":             d.AutoReply,
		"accounts_file":          d.AccountsFile,
		"playtime": map[string]any{
			"enabled": d.Playtime.Enabled,
			"file":    d.Playtime.File,
		},
		"stats": map[string]any{
			"api_key":  d.Stats.APIKey,
			"endpoint": d.Stats.Endpoint,
			"timeout":  d.Stats.Timeout,
		},
		"tokens": map[string]any{
			"database_url": d.Tokens.DatabaseURL,
		},
		"remote": map[string]any{
			"backend":        d.Remote.Backend,
			"sim_latency":    d.Remote.SimLatency,
			"sim_drop_after": d.Remote.SimDropAfter,
			"sim_token_key":  d.Remote.SimTokenKey,
		},
		"log": map[string]any{
			"format": d.Log.Format,
			"level":  d.Log.Level,
		},
		"metrics_addr": d.MetricsAddr,
		"control_addr": d.ControlAddr,
	}, nil
}

// DefaultPath returns the config file used when none is given, or "" if it
// does not exist.
func DefaultPath() string {
	path := filepath.Join(xdg.ConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load layers defaults, the YAML file at path (if any) and changed flags in
// flags (if non-nil), then validates the result. The returned koanf instance
// holds the merged raw values.
func Load(path string, flags *pflag.FlagSet) (*Config, *koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(defaults{}, nil); err != nil {
		return nil, nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil, oops.Code("CONFIG_NOT_FOUND").With("path", path).Errorf("config file %s does not exist", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, k, nil
}

// Effective returns the merged values with secrets redacted and durations
// rendered as strings, suitable for display.
func Effective(k *koanf.Koanf) map[string]any {
	out, _ := redact(k.Raw()).(map[string]any) //nolint:errcheck // Raw always returns a map
	return out
}

var secretKeys = map[string]bool{
	"password":      true,
	"shared_secret": true,
	"api_key":       true,
	"database_url":  true,
	"sim_token_key": true,
}

func redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			if s, ok := item.(string); ok && secretKeys[key] && s != "" {
				out[key] = "********"
				continue
			}
			out[key] = redact(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redact(item)
		}
		return out
	case time.Duration:
		return val.String()
	default:
		return val
	}
}
