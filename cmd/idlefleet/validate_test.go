// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/pkg/errutil"
)

const validConfig = `
version: "1.0"
login_delay: 3s
accounts:
  - name: alice
    password: hunter2
  - name: bob
    password: correct-horse
    shared_secret: AAECAwQFBgcICQoLDA0ODxAREhM=
proxies:
  - http://proxy-a:8080
activities:
  default: [730, "Custom"]
stats:
  api_key: secret-key
`

func TestValidate_AcceptsValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	output, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, output, "is valid (2 accounts, 1 proxies)")
}

func TestValidate_UsesConfigFlag(t *testing.T) {
	path := writeConfig(t, validConfig)

	output, err := execute(t, "--config", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, output, path)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
	}{
		{"unknown key", "logindelay: 3s\n", "CONFIG_INVALID"},
		{"duplicate account", "accounts:\n  - name: a\n  - name: a\n", "CONFIG_INVALID"},
		{"unsupported version", "version: \"2.0\"\n", "CONFIG_INVALID"},
		{"bad override glob", "activities:\n  overrides:\n    - match: \"[\"\n      activities: [1]\n", "CONFIG_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "validate", writeConfig(t, tt.content))
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "/nonexistent/config.yaml")
	errutil.AssertErrorCode(t, err, "CONFIG_NOT_FOUND")

	_, err = execute(t, "validate")
	errutil.AssertErrorCode(t, err, "CONFIG_NOT_FOUND")
}

func TestConfigShow_RedactsSecretsAndAppliesFlags(t *testing.T) {
	path := writeConfig(t, validConfig)

	output, err := execute(t, "--config", path, "--relog-delay", "45s", "config", "show")
	require.NoError(t, err)

	assert.Contains(t, output, "login_delay: 3s")
	assert.Contains(t, output, "relog_delay: 45s")
	assert.Contains(t, output, "name: alice")
	assert.NotContains(t, output, "hunter2")
	assert.NotContains(t, output, "secret-key")
	assert.NotContains(t, output, "AAECAwQFBgcICQoLDA0ODxAREhM=")
	assert.Contains(t, output, "********")
}
