// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package guardcode collects one-time codes typed by an operator for
// accounts that have no shared secret.
package guardcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/credential"
)

// Prompter reads codes line by line from an input stream. Requests are
// served one at a time; each consumes exactly one line.
type Prompter struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	// serializes requests
	mu sync.Mutex

	once  sync.Once
	lines chan string
	eof   chan struct{}
}

var _ credential.CodeSource = (*Prompter)(nil)

// NewPrompter creates a Prompter reading from in and printing prompts to out.
func NewPrompter(in io.Reader, out io.Writer, logger *slog.Logger) *Prompter {
	return &Prompter{
		in:     in,
		out:    out,
		logger: logger,
		lines:  make(chan string),
		eof:    make(chan struct{}),
	}
}

// Code asks for accountName's code and returns the next line read. An empty
// line aborts the login.
func (p *Prompter) Code(ctx context.Context, accountName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.once.Do(func() {
		go p.read()
	})

	p.logger.Info("guard code requested", "account", accountName)
	if _, err := fmt.Fprintf(p.out, "[%s] enter guard code (empty line skips this account): ", accountName); err != nil {
		return "", oops.Code("GUARD_PROMPT_FAILED").With("account", accountName).Wrap(err)
	}

	select {
	case line := <-p.lines:
		code := strings.TrimSpace(line)
		if code == "" {
			p.logger.Info("guard code skipped", "account", accountName)
			return "", credential.ErrAborted
		}
		return code, nil
	case <-p.eof:
		return "", oops.Code("GUARD_INPUT_CLOSED").With("account", accountName).Wrap(credential.ErrAborted)
	case <-ctx.Done():
		return "", oops.Code("GUARD_PROMPT_CANCELLED").With("account", accountName).Wrap(ctx.Err())
	}
}

func (p *Prompter) read() {
	defer close(p.eof)
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("guard code input failed", "error", err)
	}
}
