// Package transport defines the contract between the connection supervisor
// and the messaging backend that carries one identity's connection.
//
// A Transport reports everything that happens on the connection as Events on
// a single channel. The channel is closed once the transport has shut down,
// whether the peer closed it or Close was called.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StatusLoggedOut is the close status reporting that the remote side revoked
// the session. It is terminal: the identity must pair again.
const StatusLoggedOut = 401

// BroadcastChannel is the status broadcast pseudo-chat.
const BroadcastChannel = "status@broadcast"

// State is the connection state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "close"
)

// CloseReason explains a closed connection.
type CloseReason struct {
	StatusCode int
	Err        error
}

// LoggedOut reports whether the close is terminal.
func (r *CloseReason) LoggedOut() bool {
	return r != nil && r.StatusCode == StatusLoggedOut
}

func (r *CloseReason) String() string {
	if r == nil {
		return "unknown"
	}
	if r.Err != nil {
		return fmt.Sprintf("status %d: %v", r.StatusCode, r.Err)
	}
	return fmt.Sprintf("status %d", r.StatusCode)
}

// Event is one of CredentialsChanged, ConnectionUpdate or MessagesReceived.
type Event interface {
	event()
}

// CredentialsChanged carries the full replacement credential blob.
type CredentialsChanged struct {
	Creds []byte
}

// ConnectionUpdate reports a state transition. Reason is set for StateClosed.
type ConnectionUpdate struct {
	State  State
	Reason *CloseReason
}

// MessagesReceived carries a batch of inbound messages.
type MessagesReceived struct {
	Messages []Message
}

func (CredentialsChanged) event() {}
func (ConnectionUpdate) event()   {}
func (MessagesReceived) event()   {}

// Message is an inbound chat message.
type Message struct {
	ID string

	// From is the chat the message arrived in.
	From string

	// Sender is the author; equal to From outside group chats.
	Sender string

	FromMe bool

	// Text is the plain or extended text body.
	Text string

	// ButtonID is the selected id of a button reply.
	ButtonID string

	Timestamp time.Time
}

// HasContent reports whether the message carries anything to act on.
func (m Message) HasContent() bool {
	return m.Text != "" || m.ButtonID != ""
}

// Content is an outbound message body.
type Content struct {
	Text string

	// ReplyTo quotes an earlier message by ID.
	ReplyTo string
}

// Transport is a live connection for one identity.
type Transport interface {
	// Events returns the event channel. It is closed after shutdown.
	Events() <-chan Event

	// Self returns the transport's own chat identity, once known.
	Self() string

	// SendMessage sends content to a chat.
	SendMessage(ctx context.Context, to string, content Content) error

	// Close shuts the connection down without reporting a close event.
	Close() error
}

// Browser is the client descriptor presented to the remote side.
type Browser struct {
	Name     string
	Platform string
}

// Options configures a new Transport.
type Options struct {
	// Identity is the normalized number the connection belongs to.
	Identity string

	// AuthDir is the working directory holding creds.json, if any.
	AuthDir string

	Browser Browser
	Logger  *slog.Logger
}

// Factory constructs transports.
type Factory interface {
	New(ctx context.Context, opts Options) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, opts Options) (Transport, error)

// New calls f.
func (f FactoryFunc) New(ctx context.Context, opts Options) (Transport, error) {
	return f(ctx, opts)
}
