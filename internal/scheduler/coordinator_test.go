// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingObserver struct {
	mu      sync.Mutex
	nexts   []int
	lengths []int
}

func (r *recordingObserver) AdmissionAdvanced(next int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nexts = append(r.nexts, next)
}

func (r *recordingObserver) RelogQueueChanged(length int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lengths = append(r.lengths, length)
}

func TestCoordinator_AdmissionStartsAtZero(t *testing.T) {
	c := NewCoordinator()

	assert.True(t, c.IsMyTurn(0))
	assert.False(t, c.IsMyTurn(1))
	assert.Equal(t, 0, c.Next())
}

func TestCoordinator_AdvanceMovesTurnByOne(t *testing.T) {
	obs := &recordingObserver{}
	c := NewCoordinator(WithObserver(obs))

	c.Advance()
	c.Advance()

	assert.True(t, c.IsMyTurn(2))
	assert.Equal(t, []int{1, 2}, obs.nexts)
}

func TestCoordinator_EnqueueIsIdempotent(t *testing.T) {
	c := NewCoordinator()

	assert.True(t, c.Enqueue(3))
	assert.False(t, c.Enqueue(3))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(3))
}

func TestCoordinator_OnlyFrontHoldsTurn(t *testing.T) {
	c := NewCoordinator()
	for _, idx := range []int{4, 1, 7} {
		c.Enqueue(idx)
	}

	fronts := 0
	for _, idx := range []int{4, 1, 7} {
		if c.IsFront(idx) {
			fronts++
		}
	}
	assert.Equal(t, 1, fronts)
	assert.True(t, c.IsFront(4))
	assert.False(t, c.IsFront(9), "unqueued index never holds the turn")
}

func TestCoordinator_Dequeue(t *testing.T) {
	tests := []struct {
		name   string
		remove int
		want   []int
		ok     bool
	}{
		{name: "front", remove: 1, want: []int{2, 3}, ok: true},
		{name: "middle", remove: 2, want: []int{1, 3}, ok: true},
		{name: "tail", remove: 3, want: []int{1, 2}, ok: true},
		{name: "absent", remove: 9, want: []int{1, 2, 3}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			c.Enqueue(1)
			c.Enqueue(2)
			c.Enqueue(3)

			assert.Equal(t, tt.ok, c.Dequeue(tt.remove))
			assert.Equal(t, tt.want, c.Snapshot())
		})
	}
}

func TestCoordinator_RequeueToBackMovesFrontToTail(t *testing.T) {
	c := NewCoordinator()
	c.Enqueue(1)
	c.Enqueue(2)
	c.Enqueue(3)

	require.True(t, c.RequeueToBack(1))

	assert.Equal(t, []int{2, 3, 1}, c.Snapshot())
	assert.True(t, c.IsFront(2))
}

func TestCoordinator_RequeueToBackRejectsNonFront(t *testing.T) {
	c := NewCoordinator()
	c.Enqueue(1)
	c.Enqueue(2)

	assert.False(t, c.RequeueToBack(2))
	assert.False(t, c.RequeueToBack(5))
	assert.Equal(t, []int{1, 2}, c.Snapshot())
}

func TestCoordinator_RequeueSingleEntryStaysFront(t *testing.T) {
	c := NewCoordinator()
	c.Enqueue(6)

	require.True(t, c.RequeueToBack(6))
	assert.True(t, c.IsFront(6))
	assert.Equal(t, 1, c.Len())
}

func TestCoordinator_SnapshotIsCopy(t *testing.T) {
	c := NewCoordinator()
	c.Enqueue(1)

	snap := c.Snapshot()
	snap[0] = 42

	assert.Equal(t, []int{1}, c.Snapshot())
}

func TestCoordinator_ObserverSeesQueueLength(t *testing.T) {
	obs := &recordingObserver{}
	c := NewCoordinator(WithObserver(obs))

	c.Enqueue(1)
	c.Enqueue(1)
	c.Enqueue(2)
	c.RequeueToBack(1)
	c.Dequeue(2)

	assert.Equal(t, []int{1, 2, 2, 1}, obs.lengths)
}

func TestCoordinator_WaitTurnWakesOnAdvance(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator()
	done := make(chan error, 1)
	go func() {
		done <- c.WaitTurn(context.Background(), 2)
	}()

	c.Advance()
	select {
	case <-done:
		t.Fatal("index 2 admitted while index 1 held the turn")
	case <-time.After(20 * time.Millisecond):
	}

	c.Advance()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitTurn did not return after turn was granted")
	}
}

func TestCoordinator_WaitTurnHonorsCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.WaitTurn(ctx, 5)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitTurn ignored cancellation")
	}
}

func TestCoordinator_WaitFrontAfterRequeue(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator()
	c.Enqueue(1)
	c.Enqueue(2)

	done := make(chan error, 1)
	go func() {
		done <- c.WaitFront(context.Background(), 2)
	}()

	// A failed relog of the front demotes it; the next waiter gets the turn.
	require.True(t, c.RequeueToBack(1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("next account did not become front after requeue")
	}
	assert.Equal(t, []int{2, 1}, c.Snapshot())
}

func TestCoordinator_InitialLoginOrderIsIndexOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator()
	const n = 5

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := c.WaitTurn(context.Background(), idx); err != nil {
				return
			}
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
			c.Advance()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCoordinator_ConcurrentMutationsKeepQueueUnique(t *testing.T) {
	c := NewCoordinator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c.Enqueue(idx % 10)
			c.RequeueToBack(idx % 10)
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	seen := make(map[int]bool, len(snap))
	for _, idx := range snap {
		assert.False(t, seen[idx], "duplicate index %d in queue", idx)
		seen[idx] = true
	}
	assert.Len(t, snap, 10)
}
