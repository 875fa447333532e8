package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/pairmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Control serves the session operations.
	Control handler.Control

	// Ready gates GET /ready. Optional.
	Ready handler.Pinger

	// Metrics is exposed at /metrics and records request metrics. Optional.
	Metrics *metric.Registry

	Logger *slog.Logger

	// RateLimit is the per-IP rate in requests per second; 0 disables it.
	RateLimit float64

	// EnableAudit enables one log line per request.
	EnableAudit bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Control, cfg.Ready, log)

	// Order: Recover -> RequestID -> RateLimit -> Audit -> Metrics -> Handler
	chain := []Middleware{
		Recover(log),
		RequestID(log),
		RateLimit(cfg.RateLimit),
	}
	if cfg.EnableAudit {
		chain = append(chain, Audit(log))
	}
	chain = append(chain, Metrics(cfg.Metrics))

	mux := http.NewServeMux()
	mux.Handle("/", Chain(h, chain...))

	// Scrapes skip rate limiting and audit.
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), Recover(log), RequestID(log)))
	}

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   20,
		EnableAudit: true,
	}
}
