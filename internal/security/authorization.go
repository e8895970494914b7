package security

import (
	"context"
	"fmt"
	"sort"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

// Principal is the caller resolved for a single request: an identity plus
// the role set derived from its role bindings. It is never cached across
// requests.
type Principal struct {
	UserID   string
	Email    string
	Profile  *domain.Profile
	Bindings []domain.RoleBinding

	roles map[domain.Role]struct{}
}

// NewPrincipal builds a Principal. A deactivated profile yields no roles.
func NewPrincipal(userID, email string, profile *domain.Profile, bindings []domain.RoleBinding) *Principal {
	p := &Principal{
		UserID:  userID,
		Email:   email,
		Profile: profile,
		roles:   make(map[domain.Role]struct{}),
	}
	if profile != nil && profile.AccountType == domain.AccountTypeDeactivated {
		return p
	}
	p.Bindings = bindings
	for _, b := range bindings {
		p.roles[b.Role] = struct{}{}
	}
	return p
}

// Roles returns the resolved role set in a stable order.
func (p *Principal) Roles() []domain.Role {
	out := make([]domain.Role, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasRole reports whether the principal holds r in any scope.
func (p *Principal) HasRole(r domain.Role) bool {
	if p == nil {
		return false
	}
	_, ok := p.roles[r]
	return ok
}

// IsAdmin reports admin or super_admin.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(domain.RoleAdmin) || p.HasRole(domain.RoleSuperAdmin)
}

func (p *Principal) IsSuperAdmin() bool {
	return p.HasRole(domain.RoleSuperAdmin)
}

// IsHubManager reports hub_manager or admin.
func (p *Principal) IsHubManager() bool {
	return p.HasRole(domain.RoleHubManager) || p.HasRole(domain.RoleAdmin)
}

// HubScope returns the hub of the principal's hub-scoped hub_manager or
// admin binding. With several, the lowest hub id wins so the answer is
// deterministic.
func (p *Principal) HubScope() (string, bool) {
	return p.lowestHub(func(r domain.Role) bool {
		return r == domain.RoleHubManager || r == domain.RoleAdmin
	})
}

// MemberHub returns the hub of the principal's entrepreneur binding.
func (p *Principal) MemberHub() (string, bool) {
	return p.lowestHub(func(r domain.Role) bool { return r == domain.RoleEntrepreneur })
}

func (p *Principal) lowestHub(match func(domain.Role) bool) (string, bool) {
	if p == nil {
		return "", false
	}
	best := ""
	for _, b := range p.Bindings {
		if !match(b.Role) || b.HubID == nil || *b.HubID == "" {
			continue
		}
		if best == "" || *b.HubID < best {
			best = *b.HubID
		}
	}
	return best, best != ""
}

// RequireAuthenticated fails when no principal was resolved.
func RequireAuthenticated(p *Principal) error {
	if p == nil || p.UserID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// RequireRole fails closed unless the principal holds r.
func RequireRole(p *Principal, r domain.Role) error {
	return RequireAnyRole(p, r)
}

// RequireAnyRole fails closed unless the principal holds at least one of roles.
func RequireAnyRole(p *Principal, roles ...domain.Role) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return fmt.Errorf("%w: requires one of %v", domain.ErrPermissionDenied, roles)
}

// RequireAdmin admits the admin tier: hub_manager, admin or super_admin.
func RequireAdmin(p *Principal) error {
	return RequireAnyRole(p, domain.RoleHubManager, domain.RoleAdmin, domain.RoleSuperAdmin)
}

func RequireSuperAdmin(p *Principal) error {
	return RequireRole(p, domain.RoleSuperAdmin)
}

type principalKey struct{}

// ContextWithPrincipal stores the resolved principal on ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
