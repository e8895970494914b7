package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security/auth"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse contains the JWT token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

// Authenticator checks a password against the local identity store.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*domain.Identity, error)
}

// LoginHandler mints HS256 tokens for the in-memory identity provider. It is
// only routed in development when the dev_login flag is on.
type LoginHandler struct {
	tokenManager *auth.TokenManager
	users        Authenticator
	expiresIn    time.Duration
	logger       *slog.Logger
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(tm *auth.TokenManager, users Authenticator, logger *slog.Logger) *LoginHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHandler{
		tokenManager: tm,
		users:        users,
		expiresIn:    24 * time.Hour,
		logger:       logger,
	}
}

// ServeHTTP handles POST /api/dev/login requests
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, domain.InvalidInput("email and password required"))
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("authentication failed", slog.String("error", err.Error()))
		// same answer for unknown email and wrong password
		writeError(w, h.logger, domain.ErrUnauthenticated)
		return
	}

	token, err := h.tokenManager.GenerateToken(user.ID, user.Email, h.expiresIn)
	if err != nil {
		h.logger.Error("failed to generate token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("dev login", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.expiresIn),
		UserID:    user.ID,
	})
}
