package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/auth"
)

// Resolver turns a caller credential into a Principal. It reads fresh on
// every call; nothing is cached across requests.
type Resolver struct {
	verifier auth.Verifier
	profiles domain.ProfileRepository
	roles    domain.RoleBindingRepository
	logger   *slog.Logger
}

// NewResolver creates a new authorization context resolver
func NewResolver(verifier auth.Verifier, profiles domain.ProfileRepository, roles domain.RoleBindingRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{verifier: verifier, profiles: profiles, roles: roles, logger: logger}
}

// Resolve verifies token and loads the caller's role set.
func (r *Resolver) Resolve(ctx context.Context, token string) (*security.Principal, error) {
	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: credential without subject", domain.ErrUnauthenticated)
	}
	return r.Load(ctx, id.UserID, id.Email)
}

// Load fetches the profile and role bindings of userID in parallel. An
// identity without a profile resolves with whatever bindings it has.
func (r *Resolver) Load(ctx context.Context, userID, email string) (*security.Principal, error) {
	var (
		profile  *domain.Profile
		bindings []domain.RoleBinding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.profiles.GetByUserID(gctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		b, err := r.roles.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("load role bindings: %w", err)
		}
		bindings = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if email == "" && profile != nil {
		email = profile.Email
	}
	return security.NewPrincipal(userID, email, profile, bindings), nil
}
