package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/core/service"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
)

// Control is the set of operator operations served over HTTP.
type Control interface {
	RequestSession(ctx context.Context, identity string, forceReplace bool) (*service.SessionResult, error)
	ListActive() *service.ActiveSessions
	HealthCheck() *service.Health
	SessionInfo(identity string) (*service.SessionInfo, error)
	PurgeSession(ctx context.Context, identity string) error
}

// Pinger reports whether a dependency is ready to serve.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler routes control API requests.
type Handler struct {
	control Control
	ready   Pinger
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Handler. ready may be nil, in which case /ready always
// succeeds.
func New(control Control, ready Pinger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		control: control,
		ready:   ready,
		logger:  log,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Pairing is reachable on both / and /pair.
	h.mux.HandleFunc("GET /{$}", h.handlePair)
	h.mux.HandleFunc("GET /pair", h.handlePair)
	h.mux.HandleFunc("POST /sessions", h.handleCreateSession)
	h.mux.HandleFunc("GET /sessions/{identity}", h.handleGetSession)
	h.mux.HandleFunc("DELETE /sessions/{identity}", h.handlePurgeSession)
	h.mux.HandleFunc("GET /active", h.handleActive)
	h.mux.HandleFunc("GET /ping", h.handlePing)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteError(w, r, status, code, message)
}

// WriteError writes an error envelope. It is shared with the middleware so
// that every rejection has the same shape.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, nil))
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		logger.L(r.Context()).Error("internal error", "path", r.URL.Path, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message)
		return
	}

	status := errorCodeToHTTPStatus(code)
	var de *domain.DomainError
	errors.As(err, &de)

	message := de.Message
	if status >= 500 {
		logger.L(r.Context()).Error("request failed", "path", r.URL.Path, "code", code, "error", err)
	} else if de.Details != "" {
		message += ": " + de.Details
	}
	h.writeError(w, r, status, code, message)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "PM-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"), strings.HasSuffix(code, "-5031"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
