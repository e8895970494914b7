package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

type StartImpersonationRequest struct {
	HubID string `json:"hubId"`
}

type SessionResponse struct {
	ID          string    `json:"id"`
	TargetHubID string    `json:"targetHubId"`
	HubName     string    `json:"hubName,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type StartImpersonationResponse struct {
	Started bool            `json:"started"`
	Session SessionResponse `json:"session"`
}

type StopImpersonationResponse struct {
	Stopped         bool  `json:"stopped"`
	SessionsStopped int64 `json:"sessionsStopped"`
}

type ImpersonationStatusResponse struct {
	IsImpersonating bool             `json:"isImpersonating"`
	Session         *SessionResponse `json:"session,omitempty"`
}

// ImpersonationHandler handles super_admin tenant impersonation
type ImpersonationHandler struct {
	impersonation *service.ImpersonationService
	logger        *slog.Logger
}

// NewImpersonationHandler creates a new impersonation handler
func NewImpersonationHandler(impersonation *service.ImpersonationService, logger *slog.Logger) *ImpersonationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImpersonationHandler{impersonation: impersonation, logger: logger}
}

// Start handles POST /api/impersonation/start
func (h *ImpersonationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartImpersonationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.impersonation.Start(r.Context(), principal(r), req.HubID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StartImpersonationResponse{Started: true, Session: toSessionResponse(session, nil)})
}

// Stop handles POST /api/impersonation/stop
func (h *ImpersonationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	n, err := h.impersonation.Stop(r.Context(), principal(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StopImpersonationResponse{Stopped: true, SessionsStopped: n})
}

// Status handles GET /api/impersonation/status
func (h *ImpersonationHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.impersonation.Status(r.Context(), principal(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

func toStatusResponse(status *service.ImpersonationStatus) ImpersonationStatusResponse {
	resp := ImpersonationStatusResponse{IsImpersonating: status.Active}
	if status.Session != nil {
		s := toSessionResponse(status.Session, status.Hub)
		resp.Session = &s
	}
	return resp
}

func toSessionResponse(s *domain.ImpersonationSession, hub *domain.Hub) SessionResponse {
	resp := SessionResponse{
		ID:          s.ID,
		TargetHubID: s.TargetHubID,
		StartedAt:   s.StartedAt,
		ExpiresAt:   s.ExpiresAt,
	}
	if hub != nil {
		resp.HubName = hub.Name
	}
	return resp
}
