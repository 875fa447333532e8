// Package wsgateway implements transport.Transport over a websocket
// connection to a messaging gateway.
//
// The adapter dials the gateway once per identity, sends a hello frame with
// the hydrated credentials, and translates gateway frames into transport
// events. Any read failure is reported as a transient close; close code
// 4401 is reported as logged out.
package wsgateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/pairmesh-go/internal/authstate"
	"github.com/yndnr/pairmesh-go/internal/transport"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the gateway.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the gateway.
	maxFrameSize = 1 << 20

	eventBuffer = 64
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("wsgateway: connection closed")

// Config configures the gateway dialer.
type Config struct {
	// URL is the gateway websocket endpoint (ws:// or wss://).
	URL string

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration

	// TLS overrides the client TLS config for wss URLs. Nil uses Go's
	// defaults.
	TLS *tls.Config
}

// Factory dials gateway connections.
type Factory struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(cfg Config) (*Factory, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("wsgateway: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsgateway: url scheme must be ws or wss, got %q", u.Scheme)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 20 * time.Second
	}

	return &Factory{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLS,
		},
	}, nil
}

// New dials the gateway for opts.Identity.
func (f *Factory) New(ctx context.Context, opts transport.Options) (transport.Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u, _ := url.Parse(f.cfg.URL)
	q := u.Query()
	q.Set("identity", opts.Identity)
	u.RawQuery = q.Encode()

	hello := HelloFrame{
		Identity: opts.Identity,
		Browser:  BrowserFrame{Name: opts.Browser.Name, Platform: opts.Browser.Platform},
	}
	if opts.AuthDir != "" {
		blob, err := os.ReadFile(filepath.Join(opts.AuthDir, authstate.CredsFile))
		switch {
		case err == nil && json.Valid(blob):
			hello.Creds = blob
		case err == nil:
			logger.Warn("ignoring malformed credentials file", "working_dir", opts.AuthDir)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("wsgateway: read credentials: %w", err)
		}
	}

	conn, _, err := f.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wsgateway: dial: %w", err)
	}

	c := &Conn{
		conn:   conn,
		logger: logger.With("identity", opts.Identity),
		events: make(chan transport.Event, eventBuffer),
		stopCh: make(chan struct{}),
	}

	frame, err := encodeFrame(FrameHello, hello)
	if err == nil {
		err = c.writeFrame(frame)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wsgateway: hello: %w", err)
	}

	c.wg.Add(2)
	go c.readPump()
	go c.pingLoop()

	return c, nil
}

// Conn is one gateway connection.
type Conn struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan transport.Event

	self    atomic.Value // string
	writeMu sync.Mutex

	closing  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Events implements transport.Transport.
func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

// Self returns the own chat identity announced by the gateway.
func (c *Conn) Self() string {
	s, _ := c.self.Load().(string)
	return s
}

// SendMessage writes a send frame.
func (c *Conn) SendMessage(ctx context.Context, to string, content transport.Content) error {
	if c.closing.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := encodeFrame(FrameSend, SendFrame{To: to, Text: content.Text, ReplyTo: content.ReplyTo})
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// Close closes the connection. No close event is reported.
func (c *Conn) Close() error {
	c.stop(true)
	c.wg.Wait()
	return nil
}

// stop tears the connection down once.
func (c *Conn) stop(sendClose bool) {
	c.stopOnce.Do(func() {
		c.closing.Store(true)
		close(c.stopCh)

		if sendClose {
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
		}
		c.conn.Close()
	})
}

func (c *Conn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

// readPump translates gateway frames into events until the connection ends.
func (c *Conn) readPump() {
	defer c.wg.Done()
	defer close(c.events)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.logger.Warn("dropping malformed gateway frame", "error", err)
				continue
			}
			if !c.closing.Load() {
				c.emit(transport.ConnectionUpdate{State: transport.StateClosed, Reason: closeReason(err)})
			}
			c.stop(false)
			return
		}

		if closed := c.handleFrame(f); closed {
			c.stop(false)
			return
		}
	}
}

// handleFrame dispatches one frame. It reports true when the gateway
// announced the connection closed.
func (c *Conn) handleFrame(f Frame) bool {
	switch f.Type {
	case FrameCredsUpdate:
		var cf CredsFrame
		if err := json.Unmarshal(f.Data, &cf); err != nil || len(cf.Creds) == 0 {
			c.logger.Warn("dropping malformed creds frame", "error", err)
			return false
		}
		c.emit(transport.CredentialsChanged{Creds: []byte(cf.Creds)})

	case FrameConnectionUpdate:
		var cf ConnectionFrame
		if err := json.Unmarshal(f.Data, &cf); err != nil {
			c.logger.Warn("dropping malformed connection frame", "error", err)
			return false
		}
		switch transport.State(cf.Connection) {
		case transport.StateOpen:
			if cf.Self != "" {
				c.self.Store(cf.Self)
			}
			c.emit(transport.ConnectionUpdate{State: transport.StateOpen})
		case transport.StateConnecting:
			c.emit(transport.ConnectionUpdate{State: transport.StateConnecting})
		case transport.StateClosed:
			reason := &transport.CloseReason{StatusCode: cf.StatusCode}
			if cf.Error != "" {
				reason.Err = errors.New(cf.Error)
			}
			c.emit(transport.ConnectionUpdate{State: transport.StateClosed, Reason: reason})
			return true
		default:
			c.logger.Debug("ignoring connection state", "state", cf.Connection)
		}

	case FrameMessagesUpsert:
		var mf MessagesFrame
		if err := json.Unmarshal(f.Data, &mf); err != nil {
			c.logger.Warn("dropping malformed messages frame", "error", err)
			return false
		}
		msgs := make([]transport.Message, 0, len(mf.Messages))
		for _, m := range mf.Messages {
			msgs = append(msgs, m.toMessage())
		}
		if len(msgs) > 0 {
			c.emit(transport.MessagesReceived{Messages: msgs})
		}

	default:
		c.logger.Debug("ignoring gateway frame", "type", f.Type)
	}
	return false
}

func (c *Conn) emit(ev transport.Event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

// pingLoop keeps the connection alive.
func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.stopCh:
			return
		}
	}
}

// closeReason maps a read error to a close reason.
func closeReason(err error) *transport.CloseReason {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == CloseLoggedOut {
			return &transport.CloseReason{StatusCode: transport.StatusLoggedOut, Err: err}
		}
		return &transport.CloseReason{StatusCode: ce.Code, Err: err}
	}
	return &transport.CloseReason{Err: err}
}
