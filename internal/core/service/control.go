package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/pairmesh-go/internal/authstate"
	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

// HealthStatusActive is the status reported while the service runs.
const HealthStatusActive = "active"

// ControlService implements the operator operations.
type ControlService struct {
	supervisor *Supervisor
	store      CredentialStore
	dirs       *authstate.Dirs
	logger     *slog.Logger
}

// NewControlService creates a ControlService.
func NewControlService(supervisor *Supervisor, store CredentialStore, dirs *authstate.Dirs, logger *slog.Logger) *ControlService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlService{
		supervisor: supervisor,
		store:      store,
		dirs:       dirs,
		logger:     logger.With("component", "control"),
	}
}

// SessionResult is the outcome of RequestSession.
type SessionResult struct {
	Status   domain.StartStatus `json:"status"`
	Identity string             `json:"identity"`
}

// ActiveSessions lists live identities.
type ActiveSessions struct {
	Count      int      `json:"count"`
	Identities []string `json:"identities"`
}

// Health is the liveness summary.
type Health struct {
	Status      string `json:"status"`
	ActiveCount int    `json:"active_count"`
}

// SessionInfo describes one live connection.
type SessionInfo struct {
	Identity  string    `json:"identity"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"created_at"`
	Uptime    string    `json:"uptime"`
}

// RequestSession ensures identity has a connection. With forceReplace the
// stored credentials and working directory are discarded first, unless the
// identity is already live.
func (c *ControlService) RequestSession(ctx context.Context, identity string, forceReplace bool) (*SessionResult, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}

	if c.supervisor.Registry().Has(id) {
		return &SessionResult{Status: domain.StatusAlreadyConnected, Identity: id}, nil
	}

	if forceReplace {
		if err := c.store.Purge(ctx, id); err != nil {
			return nil, err
		}
		if err := c.dirs.Remove(id); err != nil {
			return nil, domain.ErrInternalServer.WithDetails("remove working directory").WithCause(err)
		}
		c.logger.Info("stored session discarded before pairing", "identity", id)
	}

	status, err := c.supervisor.Start(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionResult{Status: status, Identity: id}, nil
}

// ListActive returns the live identities.
func (c *ControlService) ListActive() *ActiveSessions {
	ids := c.supervisor.Registry().Identities()
	return &ActiveSessions{Count: len(ids), Identities: ids}
}

// HealthCheck reports liveness and the live connection count.
func (c *ControlService) HealthCheck() *Health {
	return &Health{
		Status:      HealthStatusActive,
		ActiveCount: c.supervisor.Registry().Len(),
	}
}

// SessionInfo describes the live connection of identity.
func (c *ControlService) SessionInfo(identity string) (*SessionInfo, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}

	h, ok := c.supervisor.Registry().Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(id)
	}

	created := h.CreatedAt()
	return &SessionInfo{
		Identity:  id,
		Connected: true,
		CreatedAt: created,
		Uptime:    time.Since(created).Round(time.Second).String(),
	}, nil
}

// PurgeSession disconnects identity and deletes everything stored for it.
func (c *ControlService) PurgeSession(ctx context.Context, identity string) error {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return err
	}

	disconnected := c.supervisor.Disconnect(id)

	if err := c.store.Purge(ctx, id); err != nil {
		return err
	}
	if err := c.dirs.Remove(id); err != nil {
		return domain.ErrInternalServer.WithDetails("remove working directory").WithCause(err)
	}

	c.logger.Info("session purged", "identity", id, "was_connected", disconnected)
	return nil
}
