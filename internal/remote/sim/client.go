// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package sim provides an in-process remote backend. It stands in for the
// real protocol adapter in tests and in `idlefleet run --backend sim`.
package sim

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/idlefleet/idlefleet/internal/remote"
)

// baseAccountID is the first individual account id of the public universe.
const baseAccountID uint64 = 76561197960265728

// Outcome decides how the attempt-th Connect call (1-based) resolves.
// Returning nil reports a successful logon.
type Outcome func(attempt int, logOn remote.LogOn) error

// Options tunes a simulated client.
type Options struct {
	// Latency delays every connect result.
	Latency time.Duration
	// DropAfter, when positive, drops every successful connection after it
	// has been online this long.
	DropAfter time.Duration
	// Outcome scripts connect results. Nil means every attempt succeeds.
	Outcome Outcome
}

// Client is a scriptable remote.Client.
type Client struct {
	name  string
	proxy string
	opts  Options

	events chan remote.Event
	done   chan struct{}
	close  sync.Once

	mu         sync.Mutex
	connected  bool
	attempts   int
	logOns     []remote.LogOn
	connectAt  []time.Time
	activities []remote.Activity
	presence   int
	sent       []SentMessage
	dropTimer  *time.Timer
}

// SentMessage records a message sent through the client.
type SentMessage struct {
	To   string
	Text string
}

// NewClient creates a simulated client for accountName.
func NewClient(accountName, proxy string, opts Options) *Client {
	return &Client{
		name:   accountName,
		proxy:  proxy,
		opts:   opts,
		events: make(chan remote.Event, 64),
		done:   make(chan struct{}),
	}
}

// NewFactory returns a remote.Factory producing simulated clients.
func NewFactory(opts Options) remote.Factory {
	return func(accountName, proxy string) remote.Client {
		return NewClient(accountName, proxy, opts)
	}
}

// Connect records the attempt and reports its scripted outcome after the
// configured latency.
func (c *Client) Connect(ctx context.Context, logOn remote.LogOn) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SIM_CONNECT_CANCELLED").Wrap(err)
	}

	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.logOns = append(c.logOns, logOn)
	c.connectAt = append(c.connectAt, time.Now())
	c.mu.Unlock()

	var err error
	if c.opts.Outcome != nil {
		err = c.opts.Outcome(attempt, logOn)
	}

	time.AfterFunc(c.opts.Latency, func() {
		if err != nil {
			c.emit(remote.Failed(err))
			return
		}
		c.mu.Lock()
		c.connected = true
		if c.opts.DropAfter > 0 {
			c.dropTimer = time.AfterFunc(c.opts.DropAfter, func() {
				c.Drop("simulated connection loss")
			})
		}
		c.mu.Unlock()
		c.emit(remote.Connected())
	})
	return nil
}

// Disconnect closes the simulated connection without emitting an event.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.dropTimer != nil {
		c.dropTimer.Stop()
		c.dropTimer = nil
	}
}

// SetActivities records the declared activities.
func (c *Client) SetActivities(activities []remote.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return remote.NewError(remote.ResultNoConnection, "not logged on")
	}
	c.activities = append([]remote.Activity(nil), activities...)
	return nil
}

// SetPresence records the presence value.
func (c *Client) SetPresence(state int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return remote.NewError(remote.ResultNoConnection, "not logged on")
	}
	c.presence = state
	return nil
}

// SendMessage records an outgoing message.
func (c *Client) SendMessage(to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return remote.NewError(remote.ResultNoConnection, "not logged on")
	}
	c.sent = append(c.sent, SentMessage{To: to, Text: text})
	return nil
}

// AccountID returns a stable 64-bit id derived from the account name while
// connected.
func (c *Client) AccountID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.name)) //nolint:errcheck // hash writes never fail
	return strconv.FormatUint(baseAccountID+uint64(h.Sum32()), 10)
}

// Events returns the event stream.
func (c *Client) Events() <-chan remote.Event {
	return c.events
}

// Drop simulates a connection loss.
func (c *Client) Drop(reason string) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if wasConnected {
		c.emit(remote.Disconnected(reason))
	}
}

// Fail emits an error event, as the remote does for fatal session errors.
func (c *Client) Fail(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.emit(remote.Failed(err))
}

// Rotate emits a credential rotation.
func (c *Client) Rotate(token string) {
	c.emit(remote.CredentialRotated(token))
}

// Deliver emits an incoming message.
func (c *Client) Deliver(sender, senderName, text string) {
	c.emit(remote.Message(sender, senderName, text))
}

// Close stops pending deliveries. Events sent after Close are dropped.
func (c *Client) Close() {
	c.close.Do(func() {
		close(c.done)
		c.Disconnect()
	})
}

// Attempts returns the number of Connect calls.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LogOns returns a copy of every LogOn passed to Connect.
func (c *Client) LogOns() []remote.LogOn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.LogOn(nil), c.logOns...)
}

// ConnectTimes returns when each Connect call happened.
func (c *Client) ConnectTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.connectAt...)
}

// Connected reports whether the simulated connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Activities returns the last declared activities.
func (c *Client) Activities() []remote.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Activity(nil), c.activities...)
}

// Presence returns the last presence value.
func (c *Client) Presence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// Sent returns every message sent through the client.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

// Proxy returns the proxy the client was created with.
func (c *Client) Proxy() string {
	return c.proxy
}

func (c *Client) emit(ev remote.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
