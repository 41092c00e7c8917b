// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package proxy spreads accounts over the configured outbound proxies.
package proxy

// Assign returns the proxy for the account at index. Accounts are spread
// evenly by index modulo pool size; an empty pool means no proxy.
func Assign(index int, pool []string) string {
	if len(pool) == 0 || index < 0 {
		return ""
	}
	return pool[index%len(pool)]
}
