package domain

import (
	"context"
	"time"
)

// RedemptionRecord is everything written when an invite is redeemed.
// Profile is set only for signups; Binding is nil when the invite links no hub.
type RedemptionRecord struct {
	Code    string
	UserID  string
	Profile *Profile
	Binding *RoleBinding
	Now     time.Time
}

// RedemptionRepository consumes an invite together with its relational side
// effects in one transaction. It returns ErrInviteInvalid when the invite is
// no longer active at rec.Now.
type RedemptionRepository interface {
	Redeem(ctx context.Context, rec RedemptionRecord) (*Invite, error)
}
