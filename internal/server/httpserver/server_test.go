package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/core/service"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
)

type stubControl struct {
	live map[string]bool
}

func (s *stubControl) RequestSession(_ context.Context, identity string, _ bool) (*service.SessionResult, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	if s.live[id] {
		return &service.SessionResult{Status: domain.StatusAlreadyConnected, Identity: id}, nil
	}
	s.live[id] = true
	return &service.SessionResult{Status: domain.StatusInitiated, Identity: id}, nil
}

func (s *stubControl) ListActive() *service.ActiveSessions {
	return &service.ActiveSessions{Count: len(s.live)}
}

func (s *stubControl) HealthCheck() *service.Health {
	return &service.Health{Status: service.HealthStatusActive, ActiveCount: len(s.live)}
}

func (s *stubControl) SessionInfo(string) (*service.SessionInfo, error) {
	return nil, domain.ErrSessionNotFound
}

func (s *stubControl) PurgeSession(context.Context, string) error { return nil }

func startServer(t *testing.T, cfg *RouterConfig) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(ln.Addr().String(), NewRouter(cfg), logger.Discard())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln, "", "") }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})

	return "http://" + ln.Addr().String()
}

func TestServer_RouterEndToEnd(t *testing.T) {
	reg := metric.NewRegistry()
	base := startServer(t, &RouterConfig{
		Control:     &stubControl{live: map[string]bool{}},
		Metrics:     reg,
		Logger:      logger.Discard(),
		RateLimit:   100,
		EnableAudit: true,
	})

	statuses := []domain.StartStatus{domain.StatusInitiated, domain.StatusAlreadyConnected}
	for _, want := range statuses {
		resp, err := http.Get(base + "/?number=123")
		if err != nil {
			t.Fatal(err)
		}
		var body struct {
			RequestID string                `json:"request_id"`
			Data      service.SessionResult `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if body.Data.Status != want {
			t.Errorf("status = %s, want %s", body.Data.Status, want)
		}
		if body.RequestID == "" || body.RequestID != resp.Header.Get(RequestIDHeader) {
			t.Errorf("request id body = %q header = %q", body.RequestID, resp.Header.Get(RequestIDHeader))
		}
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `pairmesh_http_requests_total{method="GET",path="/{$}",status="200"} 2`) {
		t.Errorf("request metric missing from scrape:\n%s", raw)
	}
}

func TestServer_ShutdownWithoutRequests(t *testing.T) {
	startServer(t, &RouterConfig{Control: &stubControl{live: map[string]bool{}}})
}

func TestServer_ListenError(t *testing.T) {
	srv := New("127.0.0.1:-1", http.NotFoundHandler(), logger.Discard())
	if err := srv.ListenAndServe("", ""); err == nil {
		t.Error("ListenAndServe on an invalid port succeeded")
	}
}

func TestServer_TLSKeyPairMissing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	srv := New("", http.NotFoundHandler(), logger.Discard())
	err = srv.Serve(ln, filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err == nil {
		t.Fatal("Serve with missing key pair succeeded")
	}
	if _, dialErr := net.Dial("tcp", ln.Addr().String()); dialErr == nil {
		t.Error("listener left open after TLS setup failed")
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()
	if cfg.RateLimit <= 0 {
		t.Error("RateLimit should be positive")
	}
	if !cfg.EnableAudit {
		t.Error("audit should be enabled by default")
	}
}
