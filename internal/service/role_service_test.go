package service

import (
	"context"
	"errors"
	"testing"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
)

func TestGrantRoleRules(t *testing.T) {
	ctx := context.Background()
	root := superAdmin("root")
	manager := hubManager("H1", "H")
	cases := []struct {
		name    string
		actor   *security.Principal
		binding domain.RoleBinding
		wantErr error
	}{
		{"super admin grants hub manager", root, domain.RoleBinding{UserID: "U", Role: domain.RoleHubManager, HubID: strp("K")}, nil},
		{"hub manager grants entrepreneur in own hub", manager, domain.RoleBinding{UserID: "U", Role: domain.RoleEntrepreneur, HubID: strp("H")}, nil},
		{"hub manager grants in another hub", manager, domain.RoleBinding{UserID: "U", Role: domain.RoleEntrepreneur, HubID: strp("K")}, domain.ErrPermissionDenied},
		{"hub manager grants hub manager", manager, domain.RoleBinding{UserID: "U", Role: domain.RoleHubManager, HubID: strp("H")}, domain.ErrPermissionDenied},
		{"entrepreneur without hub", root, domain.RoleBinding{UserID: "U", Role: domain.RoleEntrepreneur}, domain.ErrInvalidInput},
		{"hub-scoped super admin", root, domain.RoleBinding{UserID: "U", Role: domain.RoleSuperAdmin, HubID: strp("H")}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			err := h.roles.Grant(ctx, tc.actor, tc.binding)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("grant: %v", err)
			}
			if err := h.roles.Grant(ctx, tc.actor, tc.binding); err != nil {
				t.Fatalf("re-grant should be idempotent: %v", err)
			}
			if h.store.bindingCount("U", tc.binding.Role) != 1 {
				t.Fatal("expected exactly one stored binding")
			}
		})
	}
}

func TestGrantRequiresStaff(t *testing.T) {
	h := newHarness()
	entrepreneur := principalWith("E1", domain.RoleBinding{Role: domain.RoleEntrepreneur, HubID: strp("H")})
	err := h.roles.Grant(context.Background(), entrepreneur, domain.RoleBinding{UserID: "U", Role: domain.RoleEntrepreneur, HubID: strp("H")})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestRevokeRole(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	binding := domain.RoleBinding{UserID: "U", Role: domain.RoleEntrepreneur, HubID: strp("H")}
	if err := h.roles.Grant(ctx, hubManager("H1", "H"), binding); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.roles.Revoke(ctx, hubManager("H1", "H"), binding); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := h.roles.Revoke(ctx, hubManager("H1", "H"), binding); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second revoke: expected not found, got %v", err)
	}
}

func TestDeactivateAccount(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.profiles["U"] = &domain.Profile{UserID: "U", AccountType: domain.AccountTypeBusiness}
	h.store.bindings = []domain.RoleBinding{{UserID: "U", Role: domain.RoleEntrepreneur, HubID: strp("H")}}

	if err := h.roles.DeactivateAccount(ctx, hubManager("H1", "H"), "U"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("hub manager: expected permission denied, got %v", err)
	}
	if err := h.roles.DeactivateAccount(ctx, superAdmin("root"), "root"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("self: expected invalid input, got %v", err)
	}
	if err := h.roles.DeactivateAccount(ctx, superAdmin("root"), "U"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if h.store.profiles["U"].AccountType != domain.AccountTypeDeactivated || len(h.store.bindings) != 0 {
		t.Fatal("profile must be deactivated with every binding removed")
	}
	if err := h.roles.DeactivateAccount(ctx, superAdmin("root"), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown user: expected not found, got %v", err)
	}
}
