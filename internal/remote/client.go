// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package remote defines the contract the scheduler consumes from the remote
// protocol client. The protocol itself lives behind Client.
package remote

import (
	"context"
	"strconv"
)

// Activity identifies something an account declares itself doing while
// online. Numeric values are application ids; anything else is a free-form
// title.
type Activity string

// IsNumeric reports whether the activity is an application id.
func (a Activity) IsNumeric() bool {
	if a == "" {
		return false
	}
	_, err := strconv.ParseUint(string(a), 10, 32)
	return err == nil
}

// LogOn carries what a single connection attempt needs.
type LogOn struct {
	AccountName  string
	RefreshToken string
	GuardCode    string
	Proxy        string
}

// Client is one remote session handle. It is created once per account and
// reused across relogs. Results of Connect are reported asynchronously on
// Events.
type Client interface {
	// Connect starts a connection attempt. A non-nil error means the attempt
	// could not be started at all.
	Connect(ctx context.Context, logOn LogOn) error
	// Disconnect closes the current connection, if any.
	Disconnect()
	SetActivities(activities []Activity) error
	SetPresence(state int) error
	SendMessage(to, text string) error
	// AccountID returns the remote id of the logged-on account, or "" if
	// not logged on.
	AccountID() string
	Events() <-chan Event
}

// Factory creates the remote handle for an account routed through proxy.
type Factory func(accountName, proxy string) Client

// Authenticator exchanges interactive credentials for a long-lived refresh
// token. Implementations talk to the remote service.
type Authenticator interface {
	Authenticate(ctx context.Context, accountName, password, guardCode string) (string, error)
}
