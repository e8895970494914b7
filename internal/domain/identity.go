package domain

import (
	"context"
	"time"
)

// Identity is a user account held by the external identity provider.
type Identity struct {
	ID        string
	Email     string
	Metadata  map[string]any
	CreatedAt time.Time
}

// NewIdentity is the input for creating a provider account.
type NewIdentity struct {
	Email    string
	Password string
	Metadata map[string]any
}

// IdentityProvider is the external authentication backend. It does not take
// part in database transactions.
type IdentityProvider interface {
	CreateUser(ctx context.Context, in NewIdentity) (*Identity, error)
	// DeleteUser returns ErrNotFound when the identity no longer exists.
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*Identity, error)
}

// OrphanQueue records provider identities whose compensation was exhausted
// so a background reconciler can retry the deletion.
type OrphanQueue interface {
	Push(ctx context.Context, userID string) error
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, userID string) error
}
