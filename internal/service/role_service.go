package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
)

// RoleService is the only sanctioned path for granting and revoking roles
// outside of invite redemption.
type RoleService struct {
	roles    domain.RoleBindingRepository
	profiles domain.ProfileRepository
	scope    *security.TenantScope
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewRoleService creates a new role administration service
func NewRoleService(
	roles domain.RoleBindingRepository,
	profiles domain.ProfileRepository,
	scope *security.TenantScope,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *RoleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{roles: roles, profiles: profiles, scope: scope, audit: auditLog, logger: logger}
}

// Grant adds a binding. Granting an existing binding succeeds.
func (s *RoleService) Grant(ctx context.Context, p *security.Principal, binding domain.RoleBinding) error {
	if err := s.authorize(ctx, p, binding); err != nil {
		return err
	}
	if err := s.roles.Insert(ctx, binding); err != nil {
		return err
	}
	s.audit.LogRoleChange(ctx, deref(binding.HubID), p.UserID, "role_grant", binding.UserID, string(binding.Role))
	return nil
}

func (s *RoleService) Revoke(ctx context.Context, p *security.Principal, binding domain.RoleBinding) error {
	if err := s.authorize(ctx, p, binding); err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, binding); err != nil {
		return err
	}
	s.audit.LogRoleChange(ctx, deref(binding.HubID), p.UserID, "role_revoke", binding.UserID, string(binding.Role))
	return nil
}

// DeactivateAccount marks the profile deactivated and removes every binding.
func (s *RoleService) DeactivateAccount(ctx context.Context, p *security.Principal, userID string) error {
	if err := security.RequireSuperAdmin(p); err != nil {
		return s.deny(ctx, p, "", err)
	}
	if userID == "" {
		return domain.InvalidInput("user_id is required")
	}
	if userID == p.UserID {
		return domain.InvalidInput("cannot deactivate your own account")
	}
	if err := s.profiles.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.audit.LogRoleChange(ctx, "", p.UserID, "account_deactivate", userID, "")
	s.logger.Info("account deactivated", slog.String("user_id", userID), slog.String("by", p.UserID))
	return nil
}

// authorize lets super_admin manage any binding; hub-scoped staff may only
// manage entrepreneur bindings in their own hub.
func (s *RoleService) authorize(ctx context.Context, p *security.Principal, binding domain.RoleBinding) error {
	if err := security.RequireAdmin(p); err != nil {
		return s.deny(ctx, p, deref(binding.HubID), err)
	}
	if err := binding.Validate(); err != nil {
		return err
	}
	if p.IsSuperAdmin() {
		return nil
	}
	if _, ok := p.HubScope(); !ok || binding.Role != domain.RoleEntrepreneur {
		return s.deny(ctx, p, deref(binding.HubID),
			fmt.Errorf("%w: hub staff may only manage entrepreneurs in their own hub", domain.ErrPermissionDenied))
	}
	if err := s.scope.ValidateHubAccess(ctx, p, deref(binding.HubID)); err != nil {
		return s.deny(ctx, p, deref(binding.HubID), err)
	}
	return nil
}

func (s *RoleService) deny(ctx context.Context, p *security.Principal, hubID string, err error) error {
	if p != nil {
		s.audit.LogDenied(ctx, hubID, p.UserID, err.Error())
	}
	return err
}
