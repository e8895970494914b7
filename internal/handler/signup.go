package handler

import (
	"log/slog"
	"net/http"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

// SignupRequest is the body of POST /api/signup
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	AccountType string `json:"account_type"`
	InviteCode  string `json:"invite_code"`
}

type SignupResponse struct {
	UserID  string `json:"userId"`
	Created bool   `json:"created"`
}

// SignupHandler handles invite-gated account creation
type SignupHandler struct {
	signup *service.SignupService
	logger *slog.Logger
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(signup *service.SignupService, logger *slog.Logger) *SignupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignupHandler{signup: signup, logger: logger}
}

// ServeHTTP handles POST /api/signup
func (h *SignupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.signup.Signup(r.Context(), service.SignupRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		AccountType: domain.AccountType(req.AccountType),
		InviteCode:  req.InviteCode,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, SignupResponse{UserID: res.UserID, Created: res.Created})
}
