// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssign(t *testing.T) {
	pool := []string{"http://a:1", "http://b:2", "http://c:3"}

	tests := []struct {
		name  string
		index int
		pool  []string
		want  string
	}{
		{name: "first", index: 0, pool: pool, want: "http://a:1"},
		{name: "wraps", index: 4, pool: pool, want: "http://b:2"},
		{name: "exact multiple", index: 6, pool: pool, want: "http://a:1"},
		{name: "empty pool", index: 3, pool: nil, want: ""},
		{name: "negative index", index: -1, pool: pool, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assign(tt.index, tt.pool))
		})
	}
}

func TestAssign_EvenSpread(t *testing.T) {
	pool := []string{"p0", "p1", "p2", "p3"}
	counts := make(map[string]int)
	for i := 0; i < 40; i++ {
		counts[Assign(i, pool)]++
	}
	for _, p := range pool {
		assert.Equal(t, 10, counts[p])
	}
}
