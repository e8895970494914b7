package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
	"github.com/roxdxebec/jenga-biz/internal/observability/tracing"
	"github.com/roxdxebec/jenga-biz/internal/reliability/retry"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
)

// SignupRequest is the public signup-and-consume input.
type SignupRequest struct {
	Email       string
	Password    string
	FullName    string
	AccountType domain.AccountType
	InviteCode  string
}

// SignupResult is returned once the identity and every relational write exist.
type SignupResult struct {
	UserID  string
	Created bool
}

// SignupService creates a provider identity and redeems an invite for it.
// The provider and the database share no transaction, so a failed database
// phase is undone by deleting the identity again. If that compensation runs
// out of attempts the identity is queued as an orphan and alerted on.
type SignupService struct {
	invites       domain.InviteRepository
	redemptions   domain.RedemptionRepository
	provider      domain.IdentityProvider
	orphans       domain.OrphanQueue
	subscriptions *SubscriptionService
	audit         *audit.Logger
	compensation  *retry.Config
	now           func() time.Time
	logger        *slog.Logger
}

// NewSignupService creates a new signup orchestrator
func NewSignupService(
	invites domain.InviteRepository,
	redemptions domain.RedemptionRepository,
	provider domain.IdentityProvider,
	orphans domain.OrphanQueue,
	subscriptions *SubscriptionService,
	auditLog *audit.Logger,
	compensation *retry.Config,
	logger *slog.Logger,
) *SignupService {
	if logger == nil {
		logger = slog.Default()
	}
	if compensation == nil {
		compensation = retry.DefaultConfig()
	}
	return &SignupService{
		invites:       invites,
		redemptions:   redemptions,
		provider:      provider,
		orphans:       orphans,
		subscriptions: subscriptions,
		audit:         auditLog,
		compensation:  compensation,
		now:           time.Now,
		logger:        logger,
	}
}

// Signup runs the saga: check invite, create identity, persist, and on
// persistence failure delete the identity before returning the original error.
func (s *SignupService) Signup(ctx context.Context, req SignupRequest) (result *SignupResult, err error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "signup")
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = signupOutcome(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		metrics.ObserveSignup(outcome, time.Since(start))
		span.End()
	}()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, domain.InvalidInput("password is required")
	}
	code := normalizeCode(req.InviteCode)

	// 1. invite must be active; no external calls yet
	invite, err := s.invites.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !invite.ActiveAt(s.now())) {
		return nil, domain.ErrInviteInvalid
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(invite.InvitedEmail, email) {
		return nil, domain.ErrInviteInvalid
	}
	if req.AccountType != "" && req.AccountType != invite.AccountType {
		return nil, domain.InvalidInput("account_type does not match the invite")
	}

	// 2. identity
	identity, err := s.createIdentity(ctx, email, req)
	if err != nil {
		s.audit.LogSignup(ctx, deref(invite.HubID), "", code, "failed", "identity creation failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrIdentityCreationFailed, err)
	}
	span.SetAttributes(attribute.String("user.id", identity.ID))

	// 3. relational phase, one transaction
	now := s.now()
	fullName := strings.TrimSpace(req.FullName)
	redeemed, err := s.persist(ctx, domain.RedemptionRecord{
		Code:   code,
		UserID: identity.ID,
		Profile: &domain.Profile{
			UserID:          identity.ID,
			Email:           email,
			DisplayName:     fullName,
			AccountType:     invite.AccountType,
			ProfileComplete: fullName != "",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		Binding: hubBinding(invite, identity.ID),
		Now:     now,
	})
	if err != nil {
		// 4. compensation must finish even if the caller has gone away
		s.compensate(context.WithoutCancel(ctx), identity.ID, code)
		return nil, fmt.Errorf("%w: %w", domain.ErrSignupPersistenceFailed, err)
	}

	linked := linkedHub(redeemed)
	s.audit.LogSignup(ctx, deref(linked), identity.ID, code, "success", "")
	s.logger.Info("signup completed",
		slog.String("user_id", identity.ID),
		slog.String("hub_id", deref(linked)),
	)
	if linked != nil {
		s.subscriptions.AutoAssign(ctx, identity.ID)
	}
	return &SignupResult{UserID: identity.ID, Created: true}, nil
}

func (s *SignupService) createIdentity(ctx context.Context, email string, req SignupRequest) (*domain.Identity, error) {
	ctx, span := tracing.Tracer().Start(ctx, "signup.create_identity")
	defer span.End()

	identity, err := s.provider.CreateUser(ctx, domain.NewIdentity{
		Email:    email,
		Password: req.Password,
		Metadata: map[string]any{
			"full_name":    strings.TrimSpace(req.FullName),
			"account_type": string(req.AccountType),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create identity failed")
		s.logger.Warn("identity creation failed", slog.String("error", err.Error()))
		return nil, err
	}
	return identity, nil
}

func (s *SignupService) persist(ctx context.Context, rec domain.RedemptionRecord) (*domain.Invite, error) {
	ctx, span := tracing.Tracer().Start(ctx, "signup.persist")
	defer span.End()

	invite, err := s.redemptions.Redeem(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.logger.Error("signup persistence failed",
			slog.String("user_id", rec.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return invite, nil
}

// compensate deletes the identity with bounded exponential backoff. A
// missing identity counts as deleted.
func (s *SignupService) compensate(ctx context.Context, userID, code string) {
	ctx, span := tracing.Tracer().Start(ctx, "signup.compensate")
	defer span.End()

	_, err := retry.Do(ctx, s.compensation, s.logger, "delete_identity", func(ctx context.Context) (struct{}, error) {
		err := s.provider.DeleteUser(ctx, userID)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err == nil {
		metrics.ObserveCompensation("deleted")
		s.audit.LogSignup(ctx, "", userID, code, "compensated", "identity deleted")
		s.logger.Info("signup compensated", slog.String("user_id", userID))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "compensation exhausted")
	metrics.ObserveCompensation("exhausted")
	s.audit.LogSignup(ctx, "", userID, code, "orphaned", err.Error())
	s.logger.Error("signup compensation exhausted, identity orphaned",
		slog.String("user_id", userID),
		slog.Bool("exhausted", retry.IsExhausted(err)),
		slog.String("error", err.Error()),
	)
	if s.orphans == nil {
		return
	}
	if qerr := s.orphans.Push(ctx, userID); qerr != nil {
		s.logger.Error("failed to queue orphaned identity",
			slog.String("user_id", userID),
			slog.String("error", qerr.Error()),
		)
	}
}

func signupOutcome(err error) string {
	if e := domain.Classify(err); e != nil {
		return e.Code
	}
	return "internal"
}
