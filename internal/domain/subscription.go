package domain

import (
	"context"
	"time"
)

// SubscriptionPlan is a catalogue entry. Read-only from this service.
type SubscriptionPlan struct {
	ID       string
	Name     string
	IsActive bool
}

// SubscriptionStatus is the lifecycle state of a subscription binding.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// SubscriptionBinding attaches a user to a plan for a billing period.
type SubscriptionBinding struct {
	ID          string
	UserID      string
	PlanID      string
	Status      SubscriptionStatus
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// SubscriptionRepository defines data access for plans and user subscriptions.
type SubscriptionRepository interface {
	// FindActivePlanByName returns nil, nil when no active plan has the name.
	FindActivePlanByName(ctx context.Context, name string) (*SubscriptionPlan, error)
	// CreateIfNoneActive inserts the binding unless the user already holds an
	// active, unexpired subscription. It reports whether a row was inserted.
	CreateIfNoneActive(ctx context.Context, binding *SubscriptionBinding) (bool, error)
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}
