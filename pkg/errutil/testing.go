// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails tb unless err carries the oops code. The full error
// is printed on mismatch so wrapped remote results stay visible.
func AssertErrorCode(tb testing.TB, err error, code string) {
	tb.Helper()
	require.Error(tb, err, "expected an error with code %s", code)
	assert.Equal(tb, code, Code(err), "error: %v", err)
}

// AssertErrorContext fails tb unless err carries key=value in its oops
// context, such as the account an error belongs to.
func AssertErrorContext(tb testing.TB, err error, key string, value any) {
	tb.Helper()
	require.Error(tb, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(tb, ok, "expected oops error, got %T", err)
	got, ok := oopsErr.Context()[key]
	require.True(tb, ok, "context has no %q: %v", key, oopsErr.Context())
	assert.Equal(tb, value, got)
}
