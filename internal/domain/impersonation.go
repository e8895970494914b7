package domain

import (
	"context"
	"time"
)

// ImpersonationSession grants a super_admin the tenant scope of one hub
// until it is stopped or expires.
type ImpersonationSession struct {
	ID           string
	SuperAdminID string
	TargetHubID  string
	StartedAt    time.Time
	ExpiresAt    time.Time
	IsActive     bool
}

// ActiveAt reports whether the session is active and unexpired at now.
func (s *ImpersonationSession) ActiveAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// ImpersonationRepository defines data access for impersonation sessions.
type ImpersonationRepository interface {
	// Activate deactivates every active session of the super_admin and inserts
	// the new one in a single transaction.
	Activate(ctx context.Context, session *ImpersonationSession) error
	DeactivateAll(ctx context.Context, superAdminID string) (int64, error)
	// FindActive returns nil, nil when no active unexpired session exists.
	FindActive(ctx context.Context, superAdminID string, now time.Time) (*ImpersonationSession, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
