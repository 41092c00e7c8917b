// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package guardcode

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlefleet/idlefleet/internal/credential"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrompter_OneLinePerRequest(t *testing.T) {
	out := &syncBuffer{}
	p := NewPrompter(strings.NewReader("ABCDE\n  FGH23 \n"), out, discard())

	code, err := p.Code(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "ABCDE", code)

	code, err = p.Code(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "FGH23", code)

	assert.Contains(t, out.String(), "[alice] enter guard code")
	assert.Contains(t, out.String(), "[bob] enter guard code")

	// input exhausted
	_, err = p.Code(context.Background(), "carol")
	assert.ErrorIs(t, err, credential.ErrAborted)
	errutil.AssertErrorCode(t, err, "GUARD_INPUT_CLOSED")
}

func TestPrompter_EmptyLineAborts(t *testing.T) {
	p := NewPrompter(strings.NewReader("\n"), io.Discard, discard())
	_, err := p.Code(context.Background(), "alice")
	assert.ErrorIs(t, err, credential.ErrAborted)
}

func TestPrompter_WaitsForInput(t *testing.T) {
	r, w := io.Pipe()
	p := NewPrompter(r, io.Discard, discard())

	done := make(chan string, 1)
	go func() {
		code, _ := p.Code(context.Background(), "alice")
		done <- code
	}()

	_, err := w.Write([]byte("XY234\n"))
	require.NoError(t, err)

	select {
	case code := <-done:
		assert.Equal(t, "XY234", code)
	case <-time.After(time.Second):
		t.Fatal("code not delivered")
	}
	require.NoError(t, w.Close())
}

func TestPrompter_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close() //nolint:errcheck // test cleanup
	p := NewPrompter(r, io.Discard, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Code(ctx, "alice")
	errutil.AssertErrorCode(t, err, "GUARD_PROMPT_CANCELLED")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
