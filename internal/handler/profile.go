package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

type ProfileResponse struct {
	DisplayName     string    `json:"displayName"`
	AccountType     string    `json:"accountType"`
	ProfileComplete bool      `json:"profileComplete"`
	CreatedAt       time.Time `json:"createdAt"`
}

type BindingResponse struct {
	Role  string  `json:"role"`
	HubID *string `json:"hubId"`
}

type MeResponse struct {
	UserID        string                       `json:"userId"`
	Email         string                       `json:"email"`
	Profile       *ProfileResponse             `json:"profile"`
	Roles         []string                     `json:"roles"`
	Bindings      []BindingResponse            `json:"bindings"`
	Scope         security.Scope               `json:"scope"`
	Impersonation *ImpersonationStatusResponse `json:"impersonation,omitempty"`
}

// ProfileHandler serves the caller's own account view and tenant scope
type ProfileHandler struct {
	profiles *service.ProfileService
	scope    *security.TenantScope
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, scope *security.TenantScope, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{profiles: profiles, scope: scope, logger: logger}
}

// Me handles GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.profiles.Me(r.Context(), principal(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := MeResponse{
		UserID:   me.UserID,
		Email:    me.Email,
		Roles:    make([]string, 0, len(me.Roles)),
		Bindings: make([]BindingResponse, 0, len(me.Bindings)),
		Scope:    me.Scope,
	}
	if me.Profile != nil {
		resp.Profile = &ProfileResponse{
			DisplayName:     me.Profile.DisplayName,
			AccountType:     string(me.Profile.AccountType),
			ProfileComplete: me.Profile.ProfileComplete,
			CreatedAt:       me.Profile.CreatedAt,
		}
	}
	for _, role := range me.Roles {
		resp.Roles = append(resp.Roles, string(role))
	}
	if me.Profile == nil || me.Profile.AccountType != domain.AccountTypeDeactivated {
		for _, b := range me.Bindings {
			resp.Bindings = append(resp.Bindings, BindingResponse{Role: string(b.Role), HubID: b.HubID})
		}
	}
	if me.Impersonation != nil {
		status := toStatusResponse(me.Impersonation)
		resp.Impersonation = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

// Scope handles GET /api/tenant/scope
func (h *ProfileHandler) Scope(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope.EffectiveHub(r.Context(), principal(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scope)
}
