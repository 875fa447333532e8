package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
)

const readyTimeout = 2 * time.Second

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The service is ready once the credential
// store can be reached.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.ready.Ping(ctx); err != nil {
			logger.L(r.Context()).Warn("readiness check failed", "error", err)
			h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrStorageUnavailable.Code, "not ready")
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Status: "ready",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
