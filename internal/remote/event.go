// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package remote

// EventKind tags a lifecycle event emitted by a Client.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventError
	EventCredentialRotated
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventCredentialRotated:
		return "credential_rotated"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a tagged lifecycle notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind       EventKind
	Reason     string // EventDisconnected
	Err        error  // EventError
	Credential string // EventCredentialRotated
	Sender     string // EventMessage
	SenderName string // EventMessage, may be empty
	Text       string // EventMessage
}

// Connected returns a connected event.
func Connected() Event { return Event{Kind: EventConnected} }

// Disconnected returns a connection-loss event.
func Disconnected(reason string) Event { return Event{Kind: EventDisconnected, Reason: reason} }

// Failed returns an error event.
func Failed(err error) Event { return Event{Kind: EventError, Err: err} }

// CredentialRotated returns a token renewal event.
func CredentialRotated(token string) Event {
	return Event{Kind: EventCredentialRotated, Credential: token}
}

// Message returns an incoming message event.
func Message(sender, senderName, text string) Event {
	return Event{Kind: EventMessage, Sender: sender, SenderName: senderName, Text: text}
}
