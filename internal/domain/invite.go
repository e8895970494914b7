package domain

import (
	"context"
	"time"
)

// InviteStatus is derived from used_at and expires_at; it is never stored.
type InviteStatus string

const (
	InviteStatusActive  InviteStatus = "active"
	InviteStatusUsed    InviteStatus = "used"
	InviteStatusExpired InviteStatus = "expired"
)

// ParseInviteStatus accepts an empty string as "any status".
func ParseInviteStatus(s string) (InviteStatus, error) {
	switch st := InviteStatus(s); st {
	case "", InviteStatusActive, InviteStatusUsed, InviteStatusExpired:
		return st, nil
	default:
		return "", InvalidInput("unknown invite status %q", s)
	}
}

// Invite is a single-use, time-limited credential that gates account creation.
type Invite struct {
	Code         string
	InvitedEmail string
	AccountType  AccountType
	CreatedBy    string
	HubID        *string
	// CreatorHubID is the hub of the issuer's own hub-scoped binding at
	// issue time. Only business invites with a creator hub link the invitee.
	CreatorHubID *string
	UsedAt       *time.Time
	UsedBy       *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// StatusAt reports the invite's status as seen at now.
func (i *Invite) StatusAt(now time.Time) InviteStatus {
	switch {
	case i.UsedAt != nil:
		return InviteStatusUsed
	case !now.Before(i.ExpiresAt):
		return InviteStatusExpired
	default:
		return InviteStatusActive
	}
}

// ActiveAt reports whether the invite can still be consumed at now.
func (i *Invite) ActiveAt(now time.Time) bool {
	return i.StatusAt(now) == InviteStatusActive
}

// InviteFilter narrows invite listings. A nil HubID means every hub.
type InviteFilter struct {
	HubID  *string
	Status InviteStatus
	Limit  int
}

// InviteRepository defines data access for invite codes
type InviteRepository interface {
	// Create returns ErrConflict when the code already exists.
	Create(ctx context.Context, invite *Invite) error
	GetByCode(ctx context.Context, code string) (*Invite, error)
	List(ctx context.Context, filter InviteFilter, now time.Time) ([]*Invite, error)
}
