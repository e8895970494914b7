package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// SessionLookup finds the caller's active impersonation session.
type SessionLookup interface {
	FindActive(ctx context.Context, superAdminID string, now time.Time) (*domain.ImpersonationSession, error)
}

// Scope is the tenant context a request runs in. An unscoped Scope is the
// global view and is only granted to super_admin.
type Scope struct {
	HubID         string `json:"hubId,omitempty"`
	Scoped        bool   `json:"scoped"`
	Impersonating bool   `json:"impersonating"`
}

// TenantScope resolves the effective hub for hub-scoped queries. Every
// tenant-scoped read or write path goes through it so an active
// impersonation session is honoured everywhere.
type TenantScope struct {
	sessions SessionLookup
	now      func() time.Time
	logger   *slog.Logger
}

// NewTenantScope creates a tenant scope resolver
func NewTenantScope(sessions SessionLookup, now func() time.Time, logger *slog.Logger) *TenantScope {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &TenantScope{sessions: sessions, now: now, logger: logger}
}

// EffectiveHub resolves, in order: the impersonated hub of a super_admin,
// the caller's hub-scoped staff binding, the caller's entrepreneur hub.
// Anything else is unscoped.
func (ts *TenantScope) EffectiveHub(ctx context.Context, p *Principal) (Scope, error) {
	if err := RequireAuthenticated(p); err != nil {
		return Scope{}, err
	}
	if p.IsSuperAdmin() {
		session, err := ts.sessions.FindActive(ctx, p.UserID, ts.now())
		if err != nil {
			return Scope{}, fmt.Errorf("lookup impersonation session: %w", err)
		}
		if session != nil {
			return Scope{HubID: session.TargetHubID, Scoped: true, Impersonating: true}, nil
		}
	}
	if hub, ok := p.HubScope(); ok && !p.IsSuperAdmin() {
		return Scope{HubID: hub, Scoped: true}, nil
	}
	if hub, ok := p.MemberHub(); ok && !p.IsSuperAdmin() {
		return Scope{HubID: hub, Scoped: true}, nil
	}
	return Scope{}, nil
}

// ValidateHubAccess checks that a request for hubID stays inside the
// caller's effective scope.
func (ts *TenantScope) ValidateHubAccess(ctx context.Context, p *Principal, hubID string) error {
	scope, err := ts.EffectiveHub(ctx, p)
	if err != nil {
		return err
	}
	if !scope.Scoped {
		if p.IsSuperAdmin() {
			return nil
		}
		return fmt.Errorf("%w: no tenant scope", domain.ErrPermissionDenied)
	}
	if scope.HubID != hubID {
		ts.logger.Warn("tenant access denied",
			slog.String("user_id", p.UserID),
			slog.String("scope_hub", scope.HubID),
			slog.String("requested_hub", hubID),
		)
		return fmt.Errorf("%w: hub outside of tenant scope", domain.ErrPermissionDenied)
	}
	return nil
}
