// Package transporttest provides an in-memory Transport and Factory for
// exercising code that drives connections.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/pairmesh-go/internal/transport"
)

// ErrClosed is returned by SendMessage after Close.
var ErrClosed = errors.New("transporttest: closed")

// Sent records one outbound message.
type Sent struct {
	To      string
	Content transport.Content
}

// Transport is a scripted transport.Transport.
type Transport struct {
	opts   transport.Options
	self   string
	events chan transport.Event

	mu      sync.Mutex
	sent    []Sent
	closed  bool
	sendErr error
}

// NewTransport returns an open fake whose own chat identity is self.
func NewTransport(opts transport.Options, self string) *Transport {
	return &Transport{
		opts:   opts,
		self:   self,
		events: make(chan transport.Event, 64),
	}
}

// Options returns the options the transport was created with.
func (t *Transport) Options() transport.Options { return t.opts }

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Self implements transport.Transport.
func (t *Transport) Self() string { return t.self }

// SendMessage records the message.
func (t *Transport) SendMessage(ctx context.Context, to string, content transport.Content) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, Sent{To: to, Content: content})
	return nil
}

// Close closes the event channel without a close event.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

// Emit delivers ev unless the transport is closed.
func (t *Transport) Emit(ev transport.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.events <- ev
	return true
}

// Open emits the open state.
func (t *Transport) Open() bool {
	return t.Emit(transport.ConnectionUpdate{State: transport.StateOpen})
}

// Drop simulates the peer closing the connection with status.
func (t *Transport) Drop(status int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.events <- transport.ConnectionUpdate{
		State:  transport.StateClosed,
		Reason: &transport.CloseReason{StatusCode: status, Err: err},
	}
	t.closed = true
	close(t.events)
}

// Messages emits a batch of inbound messages.
func (t *Transport) Messages(msgs ...transport.Message) bool {
	return t.Emit(transport.MessagesReceived{Messages: msgs})
}

// SetSendError makes every subsequent SendMessage fail with err.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// Sent returns a copy of the recorded outbound messages.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// Closed reports whether Close or Drop was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Factory creates fake transports and records them in order.
type Factory struct {
	// Self is the own chat identity given to new transports; defaults to
	// "<identity>@s.whatsapp.net".
	Self string

	mu      sync.Mutex
	err     error
	created []*Transport
	notify  chan *Transport
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{notify: make(chan *Transport, 128)}
}

// New implements transport.Factory.
func (f *Factory) New(ctx context.Context, opts transport.Options) (transport.Transport, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	self := f.Self
	if self == "" {
		self = opts.Identity + "@s.whatsapp.net"
	}
	tr := NewTransport(opts, self)
	f.created = append(f.created, tr)
	f.mu.Unlock()

	select {
	case f.notify <- tr:
	default:
	}
	return tr, nil
}

// SetError makes New fail with err until cleared with nil.
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Count returns the number of transports created so far.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Created returns the transports created so far.
func (f *Factory) Created() []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Transport(nil), f.created...)
}

// Next waits for the next created transport, or returns nil on timeout.
func (f *Factory) Next(timeout time.Duration) *Transport {
	select {
	case tr := <-f.notify:
		return tr
	case <-time.After(timeout):
		return nil
	}
}
