package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
)

// AssignmentResult reports what auto-assignment did. Plan is empty unless a
// new subscription was created.
type AssignmentResult struct {
	Plan     string
	Assigned bool
}

// SubscriptionService grants the default plan to users linked to a hub.
// It is best-effort: failures are logged and counted, never returned.
type SubscriptionService struct {
	repo     domain.SubscriptionRepository
	planName string
	period   time.Duration
	enabled  bool
	now      func() time.Time
	logger   *slog.Logger
}

// SubscriptionConfig holds auto-assignment settings
type SubscriptionConfig struct {
	PlanName string
	Period   time.Duration
	Enabled  bool
}

func NewSubscriptionService(repo domain.SubscriptionRepository, cfg SubscriptionConfig, logger *slog.Logger) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PlanName == "" {
		cfg.PlanName = "premium"
	}
	if cfg.Period <= 0 {
		cfg.Period = 30 * 24 * time.Hour
	}
	return &SubscriptionService{
		repo:     repo,
		planName: cfg.PlanName,
		period:   cfg.Period,
		enabled:  cfg.Enabled,
		now:      time.Now,
		logger:   logger,
	}
}

// AutoAssign gives userID the default plan unless an active, unexpired
// subscription already exists.
func (s *SubscriptionService) AutoAssign(ctx context.Context, userID string) AssignmentResult {
	if !s.enabled {
		return AssignmentResult{}
	}

	plan, err := s.repo.FindActivePlanByName(ctx, s.planName)
	if err != nil {
		s.fail(userID, "find plan", err)
		return AssignmentResult{}
	}
	if plan == nil {
		s.logger.Debug("subscription auto-assign skipped: plan not found", slog.String("plan", s.planName))
		metrics.ObserveSubscriptionAssignment("no_plan")
		return AssignmentResult{}
	}

	now := s.now()
	inserted, err := s.repo.CreateIfNoneActive(ctx, &domain.SubscriptionBinding{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		Status:      domain.SubscriptionStatusActive,
		PeriodStart: now,
		PeriodEnd:   now.Add(s.period),
	})
	if err != nil {
		s.fail(userID, "create subscription", err)
		return AssignmentResult{}
	}
	if !inserted {
		metrics.ObserveSubscriptionAssignment("already_active")
		return AssignmentResult{}
	}

	metrics.ObserveSubscriptionAssignment("assigned")
	s.logger.Info("subscription assigned",
		slog.String("user_id", userID),
		slog.String("plan", plan.Name),
	)
	return AssignmentResult{Plan: plan.Name, Assigned: true}
}

func (s *SubscriptionService) fail(userID, step string, err error) {
	metrics.ObserveSubscriptionAssignment("error")
	s.logger.Error("subscription auto-assign failed",
		slog.String("user_id", userID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}
