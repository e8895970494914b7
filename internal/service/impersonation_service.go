package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
)

// ImpersonationStatus describes the caller's current session, if any.
type ImpersonationStatus struct {
	Active  bool
	Session *domain.ImpersonationSession
	Hub     *domain.Hub
}

// ImpersonationService manages time-boxed tenant impersonation for super_admin.
type ImpersonationService struct {
	sessions domain.ImpersonationRepository
	hubs     domain.HubRepository
	audit    *audit.Logger
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewImpersonationService creates a new impersonation manager
func NewImpersonationService(sessions domain.ImpersonationRepository, hubs domain.HubRepository, auditLog *audit.Logger, ttl time.Duration, logger *slog.Logger) *ImpersonationService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ImpersonationService{sessions: sessions, hubs: hubs, audit: auditLog, ttl: ttl, now: time.Now, logger: logger}
}

// Start replaces any active session of the caller with one targeting hubID.
func (s *ImpersonationService) Start(ctx context.Context, p *security.Principal, hubID string) (*domain.ImpersonationSession, error) {
	if err := security.RequireSuperAdmin(p); err != nil {
		if p != nil {
			s.audit.LogDenied(ctx, hubID, p.UserID, "impersonation requires super_admin")
		}
		return nil, err
	}
	hubID = strings.TrimSpace(hubID)
	if hubID == "" {
		return nil, domain.InvalidInput("hub_id is required")
	}
	if _, err := s.hubs.GetByID(ctx, hubID); err != nil {
		return nil, fmt.Errorf("hub %s: %w", hubID, err)
	}

	now := s.now()
	session := &domain.ImpersonationSession{
		ID:           uuid.NewString(),
		SuperAdminID: p.UserID,
		TargetHubID:  hubID,
		StartedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.sessions.Activate(ctx, session); err != nil {
		return nil, err
	}

	metrics.ObserveImpersonation("start")
	s.audit.LogImpersonation(ctx, hubID, p.UserID, "impersonation_start")
	s.logger.Info("impersonation started",
		slog.String("super_admin_id", p.UserID),
		slog.String("hub_id", hubID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Stop ends every active session of the caller. Stopping with no session is
// not an error.
func (s *ImpersonationService) Stop(ctx context.Context, p *security.Principal) (int64, error) {
	if err := security.RequireAuthenticated(p); err != nil {
		return 0, err
	}
	n, err := s.sessions.DeactivateAll(ctx, p.UserID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ObserveImpersonation("stop")
		s.audit.LogImpersonation(ctx, "", p.UserID, "impersonation_stop")
	}
	return n, nil
}

// Status evaluates expiry at read time.
func (s *ImpersonationService) Status(ctx context.Context, p *security.Principal) (*ImpersonationStatus, error) {
	if err := security.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	session, err := s.sessions.FindActive(ctx, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &ImpersonationStatus{}, nil
	}
	status := &ImpersonationStatus{Active: true, Session: session}
	if hub, err := s.hubs.GetByID(ctx, session.TargetHubID); err == nil {
		status.Hub = hub
	} else {
		s.logger.Warn("impersonated hub lookup failed",
			slog.String("hub_id", session.TargetHubID),
			slog.String("error", err.Error()),
		)
	}
	return status, nil
}
