package domain

import (
	"context"
	"fmt"
	"time"
)

// Role is a platform role. Entrepreneur is always hub-scoped; hub_manager and
// admin may be hub-scoped or global; super_admin is global.
type Role string

const (
	RoleEntrepreneur Role = "entrepreneur"
	RoleHubManager   Role = "hub_manager"
	RoleAdmin        Role = "admin"
	RoleSuperAdmin   Role = "super_admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleEntrepreneur, RoleHubManager, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", InvalidInput("unknown role %q", s)
	}
}

// RoleBinding associates a user with a role, optionally inside a hub.
type RoleBinding struct {
	UserID    string
	Role      Role
	HubID     *string
	CreatedAt time.Time
}

// Validate checks the hub rules for the binding's role.
func (b RoleBinding) Validate() error {
	if b.UserID == "" {
		return InvalidInput("user_id is required")
	}
	hasHub := b.HubID != nil && *b.HubID != ""
	switch b.Role {
	case RoleEntrepreneur:
		if !hasHub {
			return InvalidInput("entrepreneur role requires a hub")
		}
	case RoleSuperAdmin:
		if hasHub {
			return InvalidInput("super_admin role cannot be hub-scoped")
		}
	case RoleHubManager, RoleAdmin:
	default:
		return InvalidInput("unknown role %q", b.Role)
	}
	return nil
}

func (b RoleBinding) String() string {
	if b.HubID == nil {
		return fmt.Sprintf("%s:%s", b.UserID, b.Role)
	}
	return fmt.Sprintf("%s:%s@%s", b.UserID, b.Role, *b.HubID)
}

// RoleBindingRepository defines data access for user_roles.
type RoleBindingRepository interface {
	ListByUser(ctx context.Context, userID string) ([]RoleBinding, error)
	// Insert is idempotent: inserting an existing binding succeeds.
	Insert(ctx context.Context, binding RoleBinding) error
	Delete(ctx context.Context, binding RoleBinding) error
}
