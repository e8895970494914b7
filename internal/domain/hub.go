package domain

import "context"

// Hub is a tenant organization. Read-only from this service.
type Hub struct {
	ID          string
	Name        string
	Slug        string
	AdminUserID *string
}

// HubRepository defines read access for hubs
type HubRepository interface {
	GetByID(ctx context.Context, id string) (*Hub, error)
}
