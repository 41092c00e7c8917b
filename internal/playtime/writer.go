// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package playtime

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/xdg"
	"github.com/idlefleet/idlefleet/pkg/errutil"
)

// DefaultBuffer is the number of summaries that can wait for the writer.
const DefaultBuffer = 64

// FailureReporter is told about every summary that could not be written.
type FailureReporter interface {
	SideEffectFailed(effect string)
}

// Writer appends summaries to a file from a single background goroutine.
// Record never blocks; write failures are logged and dropped.
type Writer struct {
	path    string
	logger  *slog.Logger
	failed  FailureReporter
	pending chan Summary

	start sync.Once
	stop  sync.Once
	done  chan struct{}
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBuffer sets how many summaries may be queued.
func WithBuffer(n int) WriterOption {
	return func(w *Writer) {
		w.pending = make(chan Summary, n)
	}
}

// WithFailureReporter registers a reporter for dropped summaries.
func WithFailureReporter(r FailureReporter) WriterOption {
	return func(w *Writer) {
		w.failed = r
	}
}

// NewWriter creates a Writer appending to path. Call Start before Record.
func NewWriter(path string, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		path:    path,
		logger:  logger,
		pending: make(chan Summary, DefaultBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the background writer. It drains and exits when ctx is
// cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.start.Do(func() {
		go w.run(ctx)
	})
}

// Record queues s for writing. A full queue drops s.
func (w *Writer) Record(s Summary) {
	select {
	case w.pending <- s:
	default:
		w.logger.Warn("playtime queue full, dropping summary", "account", s.Account)
		w.reportFailure()
	}
}

// Close stops accepting work and waits until queued summaries are written.
// It must not be called concurrently with Record.
func (w *Writer) Close() {
	w.stop.Do(func() {
		close(w.pending)
	})
	<-w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case s, ok := <-w.pending:
			if !ok {
				return
			}
			w.write(s)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case s, ok := <-w.pending:
			if !ok {
				return
			}
			w.write(s)
		default:
			return
		}
	}
}

func (w *Writer) write(s Summary) {
	if err := appendLine(w.path, s.String()); err != nil {
		errutil.LogWarn(w.logger, "failed to write playtime summary", err, "account", s.Account)
		w.reportFailure()
		return
	}
	w.logger.Debug("playtime summary written", "account", s.Account, "seconds", s.Seconds())
}

func (w *Writer) reportFailure() {
	if w.failed != nil {
		w.failed.SideEffectFailed("playtime")
	}
}

func appendLine(path, line string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := xdg.EnsureDir(dir); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return oops.Code("PLAYTIME_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close() //nolint:errcheck // write error takes precedence
		return oops.Code("PLAYTIME_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("PLAYTIME_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
