package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/pairmesh-go/internal/authstate"
	"github.com/yndnr/pairmesh-go/internal/command"
	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
	"github.com/yndnr/pairmesh-go/internal/transport"
)

// DefaultConnectMessage is sent to the account itself once a connection
// opens. {number} is replaced with the identity.
const DefaultConnectMessage = "Connected Successfully!\nNumber: {number}"

// storeTimeout bounds store calls made from connection event handlers.
const storeTimeout = 10 * time.Second

// FaultFunc is called when an event loop panics outside command dispatch.
type FaultFunc func(identity string, recovered any)

// SupervisorConfig wires a Supervisor.
type SupervisorConfig struct {
	Store    CredentialStore
	Dirs     *authstate.Dirs
	Factory  transport.Factory
	Commands *command.Table
	Metrics  *metric.Registry
	Logger   *slog.Logger

	// CommandPrefix marks command messages, e.g. ".".
	CommandPrefix string

	// IgnoreChannels lists chats whose messages are never dispatched.
	IgnoreChannels []string

	SendConnectMessage bool
	ConnectMessage     string

	Browser   transport.Browser
	Reconnect ReconnectPolicy

	// RecoveryConcurrency bounds parallel starts in RecoverAll.
	RecoveryConcurrency int

	OnFault FaultFunc
}

// Supervisor owns every live connection.
type Supervisor struct {
	cfg      SupervisorConfig
	registry *Registry
	metrics  *metric.Registry
	logger   *slog.Logger
	ignore   map[string]bool

	// ctx is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	retries map[string]*retryState

	// wg tracks event loops and scheduled reconnects.
	wg sync.WaitGroup
}

// NewSupervisor validates cfg and returns a Supervisor with an empty
// registry.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, errors.New("service: supervisor requires a credential store")
	}
	if cfg.Dirs == nil {
		return nil, errors.New("service: supervisor requires working directories")
	}
	if cfg.Factory == nil {
		return nil, errors.New("service: supervisor requires a transport factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	if cfg.ConnectMessage == "" {
		cfg.ConnectMessage = DefaultConnectMessage
	}
	if cfg.RecoveryConcurrency <= 0 {
		cfg.RecoveryConcurrency = 4
	}
	cfg.Reconnect = cfg.Reconnect.withDefaults()

	ignore := make(map[string]bool, len(cfg.IgnoreChannels)+1)
	ignore[transport.BroadcastChannel] = true
	for _, ch := range cfg.IgnoreChannels {
		ignore[ch] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  cfg.Metrics,
		logger:   logger.ForComponent(cfg.Logger, "supervisor"),
		ignore:   ignore,
		ctx:      ctx,
		cancel:   cancel,
		retries:  make(map[string]*retryState),
	}

	if err := s.metrics.RegisterActiveSessions(s.registry.Len); err != nil {
		s.logger.Warn("active sessions gauge not registered", "error", err)
	}
	return s, nil
}

// Registry returns the live connection registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// ============================================================================
// Start
// ============================================================================

// Start brings up the connection of identity. It is a no-op reporting
// already_connected when identity is live or starting.
func (s *Supervisor) Start(ctx context.Context, identity string) (domain.StartStatus, error) {
	// 1. Normalize
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return "", err
	}
	if s.isClosed() {
		return "", domain.ErrSupervisorClosed
	}

	// 2. Claim the identity
	h, ok := s.registry.Reserve(id)
	if !ok {
		s.metrics.SessionStarts.WithLabelValues(string(domain.StatusAlreadyConnected)).Inc()
		return domain.StatusAlreadyConnected, nil
	}

	logger := logger.ForIdentity(s.logger, id)

	// 3. Working directory
	dir, err := s.cfg.Dirs.Ensure(id)
	if err != nil {
		s.registry.Release(h)
		s.metrics.SessionStarts.WithLabelValues("error").Inc()
		return "", domain.ErrInternalServer.WithDetails("prepare working directory").WithCause(err)
	}

	// 4. Hydrate from the store; failures degrade to a fresh pairing
	blob, found, err := s.cfg.Store.FetchActive(ctx, id)
	switch {
	case err != nil:
		logger.Warn("credential restore failed, starting fresh", "error", err)
	case found:
		if err := s.cfg.Dirs.WriteCreds(id, blob); err != nil {
			logger.Warn("could not materialize restored credentials", "error", err)
		} else {
			logger.Info("restored stored credentials")
		}
	default:
		// No live record: a creds.json left by an earlier connection
		// belongs to a logged-out session.
		if err := s.cfg.Dirs.DeleteCreds(id); err != nil {
			logger.Warn("could not remove stale credentials", "error", err)
		}
	}

	// 5. Transport
	tr, err := s.cfg.Factory.New(ctx, transport.Options{
		Identity: id,
		AuthDir:  dir,
		Browser:  s.cfg.Browser,
		Logger:   logger,
	})
	if err != nil {
		s.registry.Release(h)
		s.metrics.SessionStarts.WithLabelValues("error").Inc()
		logger.Error("transport construction failed", "error", err)
		return "", domain.ErrTransportUnavailable.WithCause(err)
	}

	// 6. Bind and start the event loop, unless Close got there first
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		tr.Close()
		s.registry.Release(h)
		return "", domain.ErrSupervisorClosed
	}
	if !s.registry.Bind(h, tr, time.Now()) {
		// Disconnect or purge removed the reservation while we dialed.
		s.mu.Unlock()
		tr.Close()
		s.metrics.SessionStarts.WithLabelValues("aborted").Inc()
		logger.Info("session start aborted by disconnect")
		return "", domain.ErrStartAborted
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(h, tr, logger)

	s.metrics.SessionStarts.WithLabelValues(string(domain.StatusInitiated)).Inc()
	logger.Info("session initiated", "restored", found)
	return domain.StatusInitiated, nil
}

// Disconnect closes the live connection of identity without reconnecting.
// It reports whether a connection existed.
func (s *Supervisor) Disconnect(identity string) bool {
	s.forgetRetry(identity)

	h, ok := s.registry.Remove(identity)
	if !ok {
		return false
	}
	if tr := h.Transport(); tr != nil {
		if err := tr.Close(); err != nil {
			s.logger.Warn("transport close failed", "identity", identity, "error", err)
		}
	}
	s.logger.Info("session disconnected", "identity", identity)
	return true
}

// ============================================================================
// Event loop
// ============================================================================

// run consumes the events of one connection until its channel closes.
func (s *Supervisor) run(h *Handle, tr transport.Transport, logger *slog.Logger) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			s.registry.RemoveIf(h.identity, h)
			tr.Close()
			if s.cfg.OnFault != nil {
				s.cfg.OnFault(h.identity, r)
			}
		}
	}()

	for ev := range tr.Events() {
		switch e := ev.(type) {
		case transport.CredentialsChanged:
			s.saveCredentials(h.identity, e.Creds, logger)
		case transport.ConnectionUpdate:
			s.handleConnection(h, tr, e, logger)
		case transport.MessagesReceived:
			s.handleMessages(h, e.Messages, logger)
		default:
			logger.Debug("ignoring unknown event", "type", fmt.Sprintf("%T", ev))
		}
	}

	// Local close or a peer close without a close event.
	s.registry.RemoveIf(h.identity, h)
}

func (s *Supervisor) saveCredentials(identity string, creds []byte, logger *slog.Logger) {
	if err := s.cfg.Dirs.WriteCreds(identity, creds); err != nil {
		logger.Warn("could not write credentials file", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	sessionID, err := s.cfg.Store.Upsert(ctx, identity, creds)
	if err != nil {
		s.metrics.CredentialSaves.WithLabelValues("error").Inc()
		logger.Error("credential save failed", "error", err)
		return
	}
	s.metrics.CredentialSaves.WithLabelValues("ok").Inc()
	logger.Debug("credentials saved", "session_id", sessionID)
}

func (s *Supervisor) handleConnection(h *Handle, tr transport.Transport, u transport.ConnectionUpdate, logger *slog.Logger) {
	switch u.State {
	case transport.StateConnecting:
		logger.Debug("connecting")

	case transport.StateOpen:
		s.resetRetry(h.identity)
		logger.Info("connection open")
		if s.cfg.SendConnectMessage {
			s.sendConnectMessage(h, tr, logger)
		}

	case transport.StateClosed:
		// A handle that is no longer registered was torn down locally or
		// replaced; its late close must not touch the identity's state.
		if !s.registry.RemoveIf(h.identity, h) {
			logger.Debug("ignoring close of a stale connection", "reason", u.Reason.String())
			return
		}

		if u.Reason.LoggedOut() {
			// Terminal: the account revoked this session.
			s.metrics.TerminalCloses.Inc()
			s.forgetRetry(h.identity)

			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := s.cfg.Store.Deactivate(ctx, h.identity); err != nil {
				logger.Error("credential deactivation failed", "error", err)
			}
			logger.Info("connection closed by logout")
			return
		}

		logger.Warn("connection lost, scheduling reconnect", "reason", u.Reason.String())
		s.scheduleReconnect(h.identity)
	}
}

func (s *Supervisor) sendConnectMessage(h *Handle, tr transport.Transport, logger *slog.Logger) {
	self := tr.Self()
	if self == "" {
		logger.Warn("own chat identity unknown, skipping connect message")
		return
	}

	text := strings.ReplaceAll(s.cfg.ConnectMessage, "{number}", h.identity)
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	if err := tr.SendMessage(ctx, self, transport.Content{Text: text}); err != nil {
		logger.Warn("connect message failed", "error", err)
	}
}

func (s *Supervisor) handleMessages(h *Handle, msgs []transport.Message, logger *slog.Logger) {
	if s.cfg.Commands == nil {
		return
	}

	for _, msg := range msgs {
		if !msg.HasContent() || s.ignore[msg.From] {
			continue
		}
		name, args, ok := command.ParseMessage(s.cfg.CommandPrefix, msg)
		if !ok {
			continue
		}

		label := "unknown"
		if hd, found := s.cfg.Commands.Lookup(name); found {
			label = hd.Name()
		}

		err := s.cfg.Commands.Dispatch(s.ctx, &command.Call{
			Conn:    h,
			Message: msg,
			Name:    name,
			Args:    args,
			Sender:  msg.Sender,
			Prefix:  s.cfg.CommandPrefix,
		})
		switch {
		case errors.Is(err, command.ErrUnknownCommand):
			s.metrics.Commands.WithLabelValues(label, "unknown").Inc()
		case err != nil:
			s.metrics.Commands.WithLabelValues(label, "error").Inc()
			logger.Error("command failed", "command", label, "sender", msg.Sender, "error", err)
		default:
			s.metrics.Commands.WithLabelValues(label, "ok").Inc()
		}
	}
}

// ============================================================================
// Shutdown
// ============================================================================

// Close cancels pending reconnects, closes every connection, waits for the
// event loops and empties the working directories. The store is left open.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, st := range s.retries {
		if st.timer != nil && st.timer.Stop() {
			s.wg.Done()
		}
		delete(s.retries, id)
	}
	s.mu.Unlock()

	s.cancel()

	handles := s.registry.Drain()
	for _, h := range handles {
		if tr := h.Transport(); tr != nil {
			if err := tr.Close(); err != nil {
				s.logger.Warn("transport close failed", "identity", h.identity, "error", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("service: waiting for event loops: %w", ctx.Err())
	}

	if err := s.cfg.Dirs.Clear(); err != nil {
		s.logger.Warn("could not clear working directories", "error", err)
	}

	s.logger.Info("supervisor closed", "connections", len(handles))
	return nil
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
