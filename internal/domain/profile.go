package domain

import (
	"context"
	"time"
)

// AccountType classifies a profile. Only business and organization can be
// granted through an invite.
type AccountType string

const (
	AccountTypeBusiness     AccountType = "business"
	AccountTypeOrganization AccountType = "organization"
	AccountTypeDeactivated  AccountType = "deactivated"
)

// Invitable reports whether an invite may carry this account type.
func (t AccountType) Invitable() bool {
	return t == AccountTypeBusiness || t == AccountTypeOrganization
}

// Profile is the local, one-to-one companion of a provider identity.
type Profile struct {
	UserID          string
	Email           string
	DisplayName     string
	AccountType     AccountType
	ProfileComplete bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileRepository defines data access for profiles
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	// Deactivate marks the profile deactivated and removes every role binding
	// for the user in one transaction.
	Deactivate(ctx context.Context, userID string) error
}
