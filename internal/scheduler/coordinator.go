// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package scheduler holds the shared admission state for the fleet: the
// initial-login gate and the relog queue.
//
// A Coordinator is created once by the fleet and handed to every account
// session. All mutations go through its methods; waiters are woken by change
// notification rather than polling.
package scheduler

import (
	"context"
	"slices"
	"sync"
)

// Observer receives the shared state after every mutation.
type Observer interface {
	AdmissionAdvanced(next int)
	RelogQueueChanged(length int)
}

// Coordinator serializes initial logins by index and orders relogs FIFO.
type Coordinator struct {
	mu      sync.Mutex
	next    int
	queue   []int
	changed chan struct{}
	obs     Observer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers an observer notified after each mutation.
func WithObserver(obs Observer) Option {
	return func(c *Coordinator) {
		c.obs = obs
	}
}

// NewCoordinator creates a coordinator whose admission gate starts at index 0
// and whose relog queue is empty.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// broadcastLocked wakes every waiter. Caller must hold mu.
func (c *Coordinator) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// IsMyTurn reports whether index currently holds the initial-login turn.
func (c *Coordinator) IsMyTurn(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next == index
}

// Next returns the index currently allowed to attempt its initial login.
func (c *Coordinator) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Advance releases the initial-login turn to the next index. It must be
// called exactly once per account that resolves its boot login.
func (c *Coordinator) Advance() {
	c.mu.Lock()
	c.next++
	next := c.next
	c.broadcastLocked()
	c.mu.Unlock()

	if c.obs != nil {
		c.obs.AdmissionAdvanced(next)
	}
}

// WaitTurn blocks until index holds the initial-login turn or ctx is done.
func (c *Coordinator) WaitTurn(ctx context.Context, index int) error {
	return c.waitFor(ctx, func() bool { return c.next == index })
}

// Enqueue appends index to the relog queue. It is a no-op returning false
// when index is already queued.
func (c *Coordinator) Enqueue(index int) bool {
	c.mu.Lock()
	if slices.Contains(c.queue, index) {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, index)
	length := len(c.queue)
	c.broadcastLocked()
	c.mu.Unlock()

	c.queueChanged(length)
	return true
}

// IsFront reports whether index holds the relog turn.
func (c *Coordinator) IsFront(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0 && c.queue[0] == index
}

// Contains reports whether index is waiting in the relog queue.
func (c *Coordinator) Contains(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.queue, index)
}

// Dequeue removes index from wherever it sits in the relog queue.
// Returns false if it was not queued.
func (c *Coordinator) Dequeue(index int) bool {
	c.mu.Lock()
	pos := slices.Index(c.queue, index)
	if pos < 0 {
		c.mu.Unlock()
		return false
	}
	c.queue = slices.Delete(c.queue, pos, pos+1)
	length := len(c.queue)
	c.broadcastLocked()
	c.mu.Unlock()

	c.queueChanged(length)
	return true
}

// RequeueToBack moves index from the front of the relog queue to the tail.
// Only the current front can demote itself; for any other index this is a
// no-op returning false.
func (c *Coordinator) RequeueToBack(index int) bool {
	c.mu.Lock()
	if len(c.queue) == 0 || c.queue[0] != index {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue[1:], index)
	length := len(c.queue)
	c.broadcastLocked()
	c.mu.Unlock()

	c.queueChanged(length)
	return true
}

// WaitFront blocks until index is at the front of the relog queue or ctx is
// done. Waiting on an index that is not queued blocks until it is enqueued
// and reaches the front.
func (c *Coordinator) WaitFront(ctx context.Context, index int) error {
	return c.waitFor(ctx, func() bool { return len(c.queue) > 0 && c.queue[0] == index })
}

// Len returns the relog queue length.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Snapshot returns a copy of the relog queue in turn order.
func (c *Coordinator) Snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// waitFor blocks until cond holds under mu. cond is evaluated with mu held.
func (c *Coordinator) waitFor(ctx context.Context, cond func() bool) error {
	for {
		c.mu.Lock()
		if cond() {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // cancellation passthrough
		}
	}
}

func (c *Coordinator) queueChanged(length int) {
	if c.obs != nil {
		c.obs.RelogQueueChanged(length)
	}
}
