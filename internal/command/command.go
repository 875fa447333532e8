// Package command routes chat commands to handlers.
//
// A Table is built once at startup from a fixed set of handlers and shared
// by every connection. Messages are parsed with Parse and dispatched with
// Table.Dispatch, which recovers handler panics.
package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/pairmesh-go/internal/transport"
)

// ErrUnknownCommand is returned by Dispatch for names not in the table.
var ErrUnknownCommand = errors.New("command: unknown command")

// Conn is the connection a command runs on.
type Conn interface {
	Identity() string
	CreatedAt() time.Time
	SendMessage(ctx context.Context, to string, content transport.Content) error
}

// Call is one command invocation.
type Call struct {
	Conn    Conn
	Message transport.Message
	Name    string
	Args    []string
	Sender  string
	Prefix  string
	Table   *Table
}

// Reply sends text back to the chat the command came from, quoting it.
func (c *Call) Reply(ctx context.Context, text string) error {
	return c.Conn.SendMessage(ctx, c.Message.From, transport.Content{
		Text:    text,
		ReplyTo: c.Message.ID,
	})
}

// Handler is a chat command.
type Handler interface {
	Name() string
	Aliases() []string
	Run(ctx context.Context, call *Call) error
}

// Table maps command names and aliases to handlers. It is immutable.
type Table struct {
	byName   map[string]Handler
	handlers []Handler
}

// NewTable builds a table from handlers, skipping any whose primary name is
// in disabled. A name or alias claimed twice is an error.
func NewTable(disabled []string, handlers ...Handler) (*Table, error) {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[strings.ToLower(strings.TrimSpace(name))] = true
	}

	t := &Table{byName: make(map[string]Handler)}
	for _, h := range handlers {
		name := strings.ToLower(h.Name())
		if name == "" {
			return nil, errors.New("command: handler with empty name")
		}
		if skip[name] {
			continue
		}

		for _, key := range append([]string{name}, h.Aliases()...) {
			key = strings.ToLower(key)
			if prev, dup := t.byName[key]; dup {
				return nil, fmt.Errorf("command: %q registered by both %s and %s", key, prev.Name(), h.Name())
			}
			t.byName[key] = h
		}
		t.handlers = append(t.handlers, h)
	}

	sort.Slice(t.handlers, func(i, j int) bool {
		return t.handlers[i].Name() < t.handlers[j].Name()
	})
	return t, nil
}

// Lookup returns the handler registered under name or alias.
func (t *Table) Lookup(name string) (Handler, bool) {
	h, ok := t.byName[strings.ToLower(name)]
	return h, ok
}

// Handlers returns the registered handlers sorted by name.
func (t *Table) Handlers() []Handler {
	return append([]Handler(nil), t.handlers...)
}

// Len returns the number of handlers.
func (t *Table) Len() int {
	return len(t.handlers)
}

// Dispatch runs the handler for call.Name. A panicking handler is reported
// as an error.
func (t *Table) Dispatch(ctx context.Context, call *Call) (err error) {
	h, ok := t.Lookup(call.Name)
	if !ok {
		return ErrUnknownCommand
	}
	call.Table = t

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v\n%s", h.Name(), r, debug.Stack())
		}
	}()
	return h.Run(ctx, call)
}

// Parse extracts a command and its arguments from text. The command is
// lower-cased; ok is false when text does not start with prefix or names no
// command.
func Parse(prefix, text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}

	fields := strings.Fields(text[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// ParseMessage parses a text body, or a button reply id when there is no
// text.
func ParseMessage(prefix string, msg transport.Message) (name string, args []string, ok bool) {
	if msg.Text != "" {
		return Parse(prefix, msg.Text)
	}
	if msg.ButtonID != "" {
		return Parse(prefix, msg.ButtonID)
	}
	return "", nil, false
}
