package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairmesh"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session lifecycle
	SessionStarts       *prometheus.CounterVec
	Reconnects          prometheus.Counter
	ReconnectsExhausted prometheus.Counter
	TerminalCloses      prometheus.Counter

	// Credential store
	CredentialSaves *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec

	// Command dispatch
	Commands *prometheus.CounterVec

	// HTTP control surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates and registers every metric on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		SessionStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Session start attempts by result (initiated, already_connected, error).",
		}, []string{"result"}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnects scheduled after a transient close.",
		}),

		ReconnectsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Identities that hit the reconnect attempt limit.",
		}),

		TerminalCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_closes_total",
			Help:      "Connections closed by logout or revocation.",
		}),

		CredentialSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_saves_total",
			Help:      "Credential update persists by result.",
		}, []string{"result"}),

		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Credential store operations that did not complete.",
		}, []string{"op"}),

		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched chat commands by result.",
		}, []string{"command", "result"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the control surface.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SessionStarts,
		r.Reconnects,
		r.ReconnectsExhausted,
		r.TerminalCloses,
		r.CredentialSaves,
		r.StoreErrors,
		r.Commands,
		r.RequestsTotal,
		r.RequestDuration,
	)

	return r
}

// Prometheus returns the underlying registry, for components that register
// their own collectors (e.g. the badger size gauges).
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
