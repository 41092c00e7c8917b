// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package config

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
)

// ParseAccounts reads name:password[:shared_secret] lines. Blank lines and
// lines starting with '#' are skipped.
func ParseAccounts(r io.Reader) ([]Account, error) {
	var accounts []Account
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.SplitN(text, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, oops.Code(CodeInvalid).With("line", line).
				Errorf("accounts line %d: want name:password[:shared_secret]", line)
		}
		acc := Account{Name: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			acc.SharedSecret = parts[2]
		}
		accounts = append(accounts, acc)
	}
	if err := scanner.Err(); err != nil {
		return nil, oops.With("operation", "read accounts").Wrap(err)
	}
	return accounts, nil
}

// AllAccounts returns the inline accounts followed by those from
// AccountsFile, rejecting duplicate names. The position in the returned
// slice is the account's login index.
func (c *Config) AllAccounts() ([]Account, error) {
	all := append([]Account(nil), c.Accounts...)
	if c.AccountsFile != "" {
		f, err := os.Open(c.AccountsFile)
		if err != nil {
			return nil, oops.Code(CodeInvalid).With("accounts_file", c.AccountsFile).Wrap(err)
		}
		defer f.Close() //nolint:errcheck // read-only file
		fromFile, err := ParseAccounts(f)
		if err != nil {
			return nil, oops.With("accounts_file", c.AccountsFile).Wrap(err)
		}
		all = append(all, fromFile...)
	}

	seen := make(map[string]bool, len(all))
	for _, acc := range all {
		if seen[acc.Name] {
			return nil, oops.Code(CodeInvalid).With("account", acc.Name).
				Errorf("account %q is listed twice", acc.Name)
		}
		seen[acc.Name] = true
	}
	return all, nil
}
