package service

import (
	"context"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
)

// Me is the caller's own view of their account.
type Me struct {
	UserID        string
	Email         string
	Profile       *domain.Profile
	Roles         []domain.Role
	Bindings      []domain.RoleBinding
	Scope         security.Scope
	Impersonation *ImpersonationStatus
}

// ProfileService assembles the caller's account view.
type ProfileService struct {
	scope         *security.TenantScope
	impersonation *ImpersonationService
}

func NewProfileService(scope *security.TenantScope, impersonation *ImpersonationService) *ProfileService {
	return &ProfileService{scope: scope, impersonation: impersonation}
}

func (s *ProfileService) Me(ctx context.Context, p *security.Principal) (*Me, error) {
	if err := security.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	scope, err := s.scope.EffectiveHub(ctx, p)
	if err != nil {
		return nil, err
	}
	me := &Me{
		UserID:   p.UserID,
		Email:    p.Email,
		Profile:  p.Profile,
		Roles:    p.Roles(),
		Bindings: p.Bindings,
		Scope:    scope,
	}
	if p.IsSuperAdmin() {
		status, err := s.impersonation.Status(ctx, p)
		if err != nil {
			return nil, err
		}
		me.Impersonation = status
	}
	return me, nil
}
