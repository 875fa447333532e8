package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/pairmesh-go/internal/authstate"
	"github.com/yndnr/pairmesh-go/internal/command"
	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
	"github.com/yndnr/pairmesh-go/internal/transport/transporttest"
)

type fakeRecord struct {
	creds      []byte
	active     bool
	tombstones int
}

// fakeStore is an in-memory CredentialStore with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*fakeRecord
	upserts int
	purges  int

	fetchErr      error
	upsertErr     error
	panicOnUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*fakeRecord)}
}

func (s *fakeStore) Upsert(ctx context.Context, identity string, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.panicOnUpsert {
		panic("store exploded")
	}
	if s.upsertErr != nil {
		return "", s.upsertErr
	}
	r, ok := s.records[identity]
	if !ok {
		r = &fakeRecord{}
		s.records[identity] = r
	}
	r.creds = append([]byte(nil), blob...)
	r.active = true
	s.upserts++
	return domain.GenerateSessionID()
}

func (s *fakeStore) FetchActive(ctx context.Context, identity string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, false, s.fetchErr
	}
	r, ok := s.records[identity]
	if !ok || !r.active {
		return nil, false, nil
	}
	return r.creds, true, nil
}

func (s *fakeStore) Deactivate(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[identity]; ok && r.active {
		r.active = false
		r.tombstones++
		r.creds = nil
	}
	return nil
}

func (s *fakeStore) Purge(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	s.purges++
	return nil
}

func (s *fakeStore) ListActive(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.records {
		if r.active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) put(identity string, creds string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identity] = &fakeRecord{creds: []byte(creds), active: active}
}

func (s *fakeStore) get(identity string) (fakeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[identity]
	if !ok {
		return fakeRecord{}, false
	}
	return *r, true
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type testEnv struct {
	sup     *Supervisor
	store   *fakeStore
	factory *transporttest.Factory
	dirs    *authstate.Dirs
	metrics *metric.Registry
}

func newTestEnv(t *testing.T, mutate func(cfg *SupervisorConfig)) *testEnv {
	t.Helper()

	table, err := command.NewTable(nil, command.Builtins("test")...)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		store:   newFakeStore(),
		factory: transporttest.NewFactory(),
		dirs:    authstate.New(t.TempDir()),
		metrics: metric.NewRegistry(),
	}

	cfg := SupervisorConfig{
		Store:         env.store,
		Dirs:          env.dirs,
		Factory:       env.factory,
		Commands:      table,
		Metrics:       env.metrics,
		Logger:        logger.Discard(),
		CommandPrefix: ".",
		Reconnect: ReconnectPolicy{
			InitialInterval:     5 * time.Millisecond,
			MaxInterval:         20 * time.Millisecond,
			Multiplier:          2,
			RandomizationFactor: 0.1,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	env.sup, err = NewSupervisor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := env.sup.Close(ctx); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return env
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// never asserts cond stays false for d.
func never(t *testing.T, what string, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("unexpected: %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
