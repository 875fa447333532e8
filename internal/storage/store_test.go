package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
)

func newTestStore(t *testing.T, dsn, key string) *Store {
	t.Helper()

	cfg := DefaultBadgerConfig()
	cfg.GCInterval = 0

	s, err := New(Options{
		DSN:           dsn,
		EncryptionKey: key,
		Badger:        cfg,
		Logger:        logger.Discard(),
		Metrics:       metric.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func backendDSNs(t *testing.T) map[string]string {
	dir := t.TempDir()
	return map[string]string{
		"memory": "memory://",
		"badger": "badger://" + filepath.Join(dir, "badger"),
		"sqlite": "sqlite://" + filepath.Join(dir, "creds.db"),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, dsn := range backendDSNs(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, dsn, "")
			ctx := context.Background()

			_, found, err := s.FetchActive(ctx, "123")
			if err != nil || found {
				t.Fatalf("FetchActive() on empty store = found %v, err %v", found, err)
			}

			sid1, err := s.Upsert(ctx, "123", []byte(`{"v":1}`))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(sid1, domain.SessionIDPrefix) {
				t.Errorf("session id %q missing prefix", sid1)
			}

			sid2, err := s.Upsert(ctx, "123", []byte(`{"v":2}`))
			if err != nil {
				t.Fatal(err)
			}
			if sid1 == sid2 {
				t.Error("session id not regenerated on save")
			}

			blob, found, err := s.FetchActive(ctx, "123")
			if err != nil || !found {
				t.Fatalf("FetchActive() = found %v, err %v", found, err)
			}
			if string(blob) != `{"v":2}` {
				t.Errorf("FetchActive() = %s, want latest blob", blob)
			}

			ids, err := s.ListActive(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 1 || ids[0] != "123" {
				t.Errorf("ListActive() = %v, want [123]", ids)
			}

			if err := s.Deactivate(ctx, "123"); err != nil {
				t.Fatal(err)
			}
			if _, found, _ := s.FetchActive(ctx, "123"); found {
				t.Error("deactivated record still fetched")
			}
			if ids, _ := s.ListActive(ctx); len(ids) != 0 {
				t.Errorf("ListActive() after deactivate = %v", ids)
			}

			rec, err := s.Record(ctx, "123")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Active || rec.Creds != "" || len(rec.Tombstones) != 1 {
				t.Errorf("deactivated record = %+v", rec)
			}
			for field, v := range rec.Tombstones {
				if !strings.HasPrefix(field, domain.TombstonePrefix) || v != `{"v":2}` {
					t.Errorf("tombstone %s = %s", field, v)
				}
			}

			if err := s.Purge(ctx, "123"); err != nil {
				t.Fatal(err)
			}
			if err := s.Purge(ctx, "123"); err != nil {
				t.Errorf("second Purge() = %v, want nil", err)
			}
			if _, err := s.Record(ctx, "123"); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("Record() after purge error = %v", err)
			}
		})
	}
}

func TestStore_DeactivateTwiceKeepsTombstones(t *testing.T) {
	s := newTestStore(t, "memory://", "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Upsert(ctx, "555", []byte("blob")); err != nil {
			t.Fatal(err)
		}
		if err := s.Deactivate(ctx, "555"); err != nil {
			t.Fatal(err)
		}
	}
	// Already inactive: no-op.
	if err := s.Deactivate(ctx, "555"); err != nil {
		t.Fatal(err)
	}
	// Missing identity: no-op.
	if err := s.Deactivate(ctx, "999"); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Record(ctx, "555")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Tombstones) != 2 {
		t.Errorf("tombstones = %d, want 2", len(rec.Tombstones))
	}
}

func TestStore_Sealed(t *testing.T) {
	for name, dsn := range backendDSNs(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, dsn, testKey)
			ctx := context.Background()

			if _, err := s.Upsert(ctx, "42", []byte("secret-creds")); err != nil {
				t.Fatal(err)
			}

			rec, err := s.Record(ctx, "42")
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(rec.Creds, SealedPrefix) {
				t.Errorf("stored creds not sealed: %q", rec.Creds)
			}

			blob, found, err := s.FetchActive(ctx, "42")
			if err != nil || !found || string(blob) != "secret-creds" {
				t.Errorf("FetchActive() = %q, %v, %v", blob, found, err)
			}
		})
	}
}

func TestStore_ConcurrentUpsert(t *testing.T) {
	s := newTestStore(t, "memory://", "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Upsert(ctx, "777", []byte("x")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	ids, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("ListActive() = %v", ids)
	}
}

type stubBackend struct {
	Backend
	closed atomic.Bool
}

func (b *stubBackend) Delete(ctx context.Context, identity string) error { return nil }
func (b *stubBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func TestStore_LazyOpen(t *testing.T) {
	reg := metric.NewRegistry()
	s, err := New(Options{DSN: "memory://", Logger: logger.Discard(), Metrics: reg})
	if err != nil {
		t.Fatal(err)
	}

	var opens atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	stub := &stubBackend{}
	s.open = func(ctx context.Context) (Backend, error) {
		opens.Add(1)
		if fail.Load() {
			return nil, errors.New("disk on fire")
		}
		return stub, nil
	}

	ctx := context.Background()
	err = s.Purge(ctx, "1")
	if !errors.Is(err, domain.ErrStorageError) {
		t.Fatalf("Purge() with failing open error = %v, want ErrStorageError", err)
	}
	if got := testutil.ToFloat64(reg.StoreErrors.WithLabelValues("purge")); got != 1 {
		t.Errorf("store_errors_total{purge} = %v, want 1", got)
	}

	fail.Store(false)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Purge(ctx, "1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := opens.Load(); got != 2 {
		t.Errorf("open called %d times, want 2 (one failure, one success)", got)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !stub.closed.Load() {
		t.Error("backend not closed")
	}
	if err := s.Purge(ctx, "1"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("Purge() after Close error = %v, want ErrStorageUnavailable", err)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(Options{DSN: "ftp://x"}); err == nil {
		t.Error("expected error for unsupported dsn")
	}
	if _, err := New(Options{DSN: "memory://", EncryptionKey: "zz"}); err == nil {
		t.Error("expected error for bad encryption key")
	}
}

func TestStore_Ping(t *testing.T) {
	s, err := New(Options{DSN: "memory://", Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	var fail atomic.Bool
	fail.Store(true)
	s.open = func(ctx context.Context) (Backend, error) {
		if fail.Load() {
			return nil, errors.New("not yet")
		}
		return &stubBackend{}, nil
	}

	ctx := context.Background()
	if err := s.Ping(ctx); err == nil {
		t.Fatal("Ping() succeeded while the backend cannot open")
	}
	fail.Store(false)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() after recovery error = %v", err)
	}

	s.Close()
	if err := s.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after Close error = %v, want ErrClosed", err)
	}
}

func TestStore_NormalizesIdentity(t *testing.T) {
	for name, dsn := range backendDSNs(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, dsn, strings.Repeat("ab", 16))
			ctx := context.Background()

			if _, err := s.Upsert(ctx, "+1 (555) 123-4567", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			blob, found, err := s.FetchActive(ctx, "15551234567")
			if err != nil || !found || string(blob) != `{"v":1}` {
				t.Fatalf("FetchActive(digits) = %q, %v, %v", blob, found, err)
			}

			ids, err := s.ListActive(ctx)
			if err != nil || len(ids) != 1 || ids[0] != "15551234567" {
				t.Fatalf("ListActive() = %v, %v", ids, err)
			}

			if err := s.Deactivate(ctx, "1-555-123-4567"); err != nil {
				t.Fatal(err)
			}
			if _, found, _ := s.FetchActive(ctx, "+15551234567"); found {
				t.Error("credentials still active after Deactivate via formatted identity")
			}

			if err := s.Purge(ctx, "+1 555 123 4567"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Record(ctx, "15551234567"); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("Record() after Purge error = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestStore_RejectsIdentityWithoutDigits(t *testing.T) {
	s := newTestStore(t, "memory://", "")
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "abc", []byte("x")); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("Upsert() error = %v, want ErrInvalidIdentity", err)
	}
	if _, _, err := s.FetchActive(ctx, ""); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("FetchActive() error = %v, want ErrInvalidIdentity", err)
	}
}
