package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

// IssueInviteRequest is the body of POST /api/invites
type IssueInviteRequest struct {
	InvitedEmail string     `json:"invited_email"`
	AccountType  string     `json:"account_type"`
	HubID        *string    `json:"hub_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// InviteResponse is the public shape of an invite. Status is computed at read time.
type InviteResponse struct {
	Code         string     `json:"code"`
	InvitedEmail string     `json:"invited_email"`
	AccountType  string     `json:"account_type"`
	CreatedBy    string     `json:"created_by"`
	HubID        *string    `json:"hub_id"`
	UsedAt       *time.Time `json:"used_at"`
	UsedBy       *string    `json:"used_by"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	Status       string     `json:"status"`
}

type ValidateInviteResponse struct {
	Valid  bool            `json:"valid"`
	Invite *InviteResponse `json:"invite,omitempty"`
}

type ConsumeInviteRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type ConsumeInviteResponse struct {
	Consumed             bool    `json:"consumed"`
	LinkedHubID          *string `json:"linked_hub_id"`
	AssignedPlan         *string `json:"assigned_plan"`
	SubscriptionAssigned bool    `json:"subscription_assigned"`
}

type ListInvitesResponse struct {
	Invites []InviteResponse `json:"invites"`
}

// InviteHandler handles invite registry endpoints
type InviteHandler struct {
	invites *service.InviteService
	now     func() time.Time
	logger  *slog.Logger
}

// NewInviteHandler creates a new invite handler
func NewInviteHandler(invites *service.InviteService, logger *slog.Logger) *InviteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteHandler{invites: invites, now: time.Now, logger: logger}
}

// Issue handles POST /api/invites
func (h *InviteHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	invite, err := h.invites.Issue(r.Context(), principal(r), service.IssueRequest{
		InvitedEmail: req.InvitedEmail,
		AccountType:  domain.AccountType(req.AccountType),
		HubID:        req.HubID,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(invite))
}

// List handles GET /api/invites?status=&limit=
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseInviteStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, h.logger, domain.InvalidInput("limit must be a non-negative integer"))
			return
		}
	}

	invites, err := h.invites.List(r.Context(), principal(r), status, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := ListInvitesResponse{Invites: make([]InviteResponse, 0, len(invites))}
	for _, inv := range invites {
		resp.Invites = append(resp.Invites, h.toResponse(inv))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate handles GET /api/invites/{code}/validate. It is public and only
// ever answers valid or not.
func (h *InviteHandler) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.invites.Validate(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := ValidateInviteResponse{Valid: res.Valid}
	if res.Invite != nil {
		inv := h.toResponse(res.Invite)
		resp.Invite = &inv
	}
	writeJSON(w, http.StatusOK, resp)
}

// Consume handles POST /api/invites/consume
func (h *InviteHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p := principal(r)
	if req.UserID == "" && p != nil {
		req.UserID = p.UserID
	}

	res, err := h.invites.Consume(r.Context(), p, req.Code, req.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ConsumeInviteResponse{
		Consumed:             res.Consumed,
		LinkedHubID:          res.LinkedHubID,
		AssignedPlan:         res.AssignedPlan,
		SubscriptionAssigned: res.SubscriptionAssigned,
	})
}

func (h *InviteHandler) toResponse(inv *domain.Invite) InviteResponse {
	return InviteResponse{
		Code:         inv.Code,
		InvitedEmail: inv.InvitedEmail,
		AccountType:  string(inv.AccountType),
		CreatedBy:    inv.CreatedBy,
		HubID:        inv.HubID,
		UsedAt:       inv.UsedAt,
		UsedBy:       inv.UsedBy,
		ExpiresAt:    inv.ExpiresAt,
		CreatedAt:    inv.CreatedAt,
		Status:       string(inv.StatusAt(h.now())),
	}
}
