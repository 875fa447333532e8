package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
)

// Options configures a Store.
type Options struct {
	// DSN selects the backend, see ParseDSN.
	DSN string

	// EncryptionKey is an optional hex AEAD key for sealing credentials.
	EncryptionKey string

	// Badger tunes the Badger backend.
	Badger BadgerConfig

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Store is the durable credential store shared by all identities.
//
// The backend is opened on first use. Concurrent first calls share a single
// open; a failed open is not cached and the next call retries.
type Store struct {
	dsn     DSN
	opts    Options
	sealer  *Sealer
	logger  *slog.Logger
	metrics *metric.Registry

	mu      sync.Mutex
	backend Backend
	closed  bool

	// open is swappable for tests.
	open func(ctx context.Context) (Backend, error)
}

// New validates opts and returns an unopened Store.
func New(opts Options) (*Store, error) {
	dsn, err := ParseDSN(opts.DSN)
	if err != nil {
		return nil, err
	}

	sealer, err := NewSealer(opts.EncryptionKey)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Badger == (BadgerConfig{}) {
		opts.Badger = DefaultBadgerConfig()
	}

	s := &Store{
		dsn:     dsn,
		opts:    opts,
		sealer:  sealer,
		logger:  logger.ForComponent(opts.Logger, "storage").With("backend", dsn.Kind),
		metrics: opts.Metrics,
	}
	s.open = s.openBackend
	return s, nil
}

// Upsert stores blob as the live credentials of identity and returns the
// freshly generated session ID.
func (s *Store) Upsert(ctx context.Context, identity string, blob []byte) (string, error) {
	identity, err := domain.ParseIdentity(identity)
	if err != nil {
		return "", err
	}
	b, err := s.conn(ctx)
	if err != nil {
		return "", s.fail("upsert", identity, err)
	}

	stored, err := s.sealer.Seal(identity, blob)
	if err != nil {
		return "", s.fail("upsert", identity, err)
	}

	var sessionID string
	err = b.Update(ctx, identity, func(cur *domain.CredentialRecord) (*domain.CredentialRecord, error) {
		next := cur
		if next == nil {
			next = &domain.CredentialRecord{Identity: identity}
		}
		if err := next.Refresh([]byte(stored)); err != nil {
			return nil, err
		}
		sessionID = next.SessionID
		return next, nil
	})
	if err != nil {
		return "", s.fail("upsert", identity, err)
	}

	s.logger.Debug("credentials saved", "identity", identity, "session_id", sessionID)
	return sessionID, nil
}

// FetchActive returns the live credential blob of identity. A missing or
// inactive record reports found=false without error.
func (s *Store) FetchActive(ctx context.Context, identity string) ([]byte, bool, error) {
	identity, err := domain.ParseIdentity(identity)
	if err != nil {
		return nil, false, err
	}
	b, err := s.conn(ctx)
	if err != nil {
		return nil, false, s.fail("fetch", identity, err)
	}

	rec, err := b.Get(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail("fetch", identity, err)
	}
	if !rec.HasLiveCredentials() {
		return nil, false, nil
	}

	blob, err := s.sealer.Open(identity, rec.Creds)
	if err != nil {
		return nil, false, s.fail("fetch", identity, err)
	}
	return blob, true, nil
}

// Deactivate retires the live credentials of identity into a tombstone
// field. Missing or already inactive records are left as they are.
func (s *Store) Deactivate(ctx context.Context, identity string) error {
	identity, err := domain.ParseIdentity(identity)
	if err != nil {
		return err
	}
	b, err := s.conn(ctx)
	if err != nil {
		return s.fail("deactivate", identity, err)
	}

	var field string
	err = b.Update(ctx, identity, func(cur *domain.CredentialRecord) (*domain.CredentialRecord, error) {
		if cur == nil || !cur.Active {
			return nil, nil
		}
		var err error
		field, err = cur.Retire()
		if err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return s.fail("deactivate", identity, err)
	}

	s.logger.Info("credentials deactivated", "identity", identity, "tombstone", field)
	return nil
}

// Purge hard-deletes the record of identity. It is idempotent.
func (s *Store) Purge(ctx context.Context, identity string) error {
	identity, err := domain.ParseIdentity(identity)
	if err != nil {
		return err
	}
	b, err := s.conn(ctx)
	if err != nil {
		return s.fail("purge", identity, err)
	}
	if err := b.Delete(ctx, identity); err != nil {
		return s.fail("purge", identity, err)
	}

	s.logger.Info("credentials purged", "identity", identity)
	return nil
}

// ListActive returns the identities of every active record.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	b, err := s.conn(ctx)
	if err != nil {
		return nil, s.fail("list", "", err)
	}

	ids, err := b.ActiveIdentities(ctx)
	if err != nil {
		return nil, s.fail("list", "", err)
	}
	return ids, nil
}

// Record returns a copy of the stored document for identity, with live
// credentials left in their stored form.
func (s *Store) Record(ctx context.Context, identity string) (*domain.CredentialRecord, error) {
	identity, err := domain.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	b, err := s.conn(ctx)
	if err != nil {
		return nil, s.fail("fetch", identity, err)
	}

	rec, err := b.Get(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, s.fail("fetch", identity, err)
	}
	return rec.Clone(), nil
}

// Ping opens the backend if needed and reports whether it is usable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// Close releases the backend. Further calls return ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

// conn returns the open backend, opening it exactly once on success.
func (s *Store) conn(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.backend != nil {
		return s.backend, nil
	}

	b, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.dsn.Kind, err)
	}
	s.backend = b
	return b, nil
}

func (s *Store) openBackend(ctx context.Context) (Backend, error) {
	switch s.dsn.Kind {
	case KindSQLite:
		return openSQLite(ctx, s.dsn.Path, s.logger)
	case KindBadger, KindMemory:
		b, err := openBadger(s.dsn.Path, s.opts.Badger, s.logger)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			if err := b.RegisterMetrics(s.metrics.Prometheus()); err != nil {
				s.logger.Warn("badger metrics not registered", "error", err)
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", s.dsn.Kind)
	}
}

// fail wraps err as a storage error, logs it and counts it.
func (s *Store) fail(op, identity string, err error) error {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
	s.logger.Error("store operation failed", "op", op, "identity", identity, "error", err)

	if errors.Is(err, ErrClosed) {
		return domain.ErrStorageUnavailable.WithCause(err)
	}
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageError.WithDetails(op).WithCause(err)
}
