package handler

import (
	"log/slog"
	"net/http"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

type RoleBindingRequest struct {
	UserID string  `json:"user_id"`
	Role   string  `json:"role"`
	HubID  *string `json:"hub_id,omitempty"`
}

// RoleHandler handles explicit role administration
type RoleHandler struct {
	roles  *service.RoleService
	logger *slog.Logger
}

func NewRoleHandler(roles *service.RoleService, logger *slog.Logger) *RoleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleHandler{roles: roles, logger: logger}
}

// Grant handles POST /api/roles/grant
func (h *RoleHandler) Grant(w http.ResponseWriter, r *http.Request) {
	binding, err := h.decodeBinding(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.roles.Grant(r.Context(), principal(r), binding); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": true})
}

// Revoke handles POST /api/roles/revoke
func (h *RoleHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	binding, err := h.decodeBinding(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.roles.Revoke(r.Context(), principal(r), binding); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// Deactivate handles POST /api/users/{id}/deactivate
func (h *RoleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.DeactivateAccount(r.Context(), principal(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

func (h *RoleHandler) decodeBinding(w http.ResponseWriter, r *http.Request) (domain.RoleBinding, error) {
	var req RoleBindingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return domain.RoleBinding{}, err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return domain.RoleBinding{}, err
	}
	if req.HubID != nil && *req.HubID == "" {
		req.HubID = nil
	}
	return domain.RoleBinding{UserID: req.UserID, Role: role, HubID: req.HubID}, nil
}
