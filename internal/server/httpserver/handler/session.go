package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

// handlePair handles GET / and GET /pair.
func (h *Handler) handlePair(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity := q.Get("number")
	if identity == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "number is required")
		return
	}

	force, err := parseForce(q.Get("force"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "force must be true or false")
		return
	}

	h.requestSession(w, r, identity, force)
}

// handleCreateSession handles POST /sessions.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body")
		return
	}
	if req.Identity == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "identity is required")
		return
	}

	h.requestSession(w, r, req.Identity, req.Force)
}

func (h *Handler) requestSession(w http.ResponseWriter, r *http.Request, identity string, force bool) {
	result, err := h.control.RequestSession(r.Context(), identity, force)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

// handleGetSession handles GET /sessions/{identity}.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.control.SessionInfo(r.PathValue("identity"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, info)
}

// handlePurgeSession handles DELETE /sessions/{identity}.
func (h *Handler) handlePurgeSession(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if err := h.control.PurgeSession(r.Context(), identity); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	normalized, _ := domain.ParseIdentity(identity)
	h.writeJSON(w, r, http.StatusOK, PurgeResponse{Identity: normalized, Purged: true})
}

// handleActive handles GET /active.
func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.control.ListActive())
}

// handlePing handles GET /ping.
func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	health := h.control.HealthCheck()
	h.writeJSON(w, r, http.StatusOK, PingResponse{
		Status:      health.Status,
		Message:     "BOT is running",
		ActiveCount: health.ActiveCount,
	})
}

// parseForce accepts an absent value as false.
func parseForce(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
