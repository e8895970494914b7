package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
)

const codeInsertAttempts = 3

// IssueRequest is the input of Issue. HubID is honoured for super_admin only.
type IssueRequest struct {
	InvitedEmail string
	AccountType  domain.AccountType
	HubID        *string
	ExpiresAt    *time.Time
}

// ValidateResult is deliberately coarse: an unusable code never says why.
type ValidateResult struct {
	Valid  bool
	Invite *domain.Invite
}

// ConsumeResult is the outcome of a successful Consume.
type ConsumeResult struct {
	Consumed             bool
	LinkedHubID          *string
	AssignedPlan         *string
	SubscriptionAssigned bool
}

// InviteService is the invite registry: issuance, public validation and
// single-use consumption.
type InviteService struct {
	invites       domain.InviteRepository
	redemptions   domain.RedemptionRepository
	hubs          domain.HubRepository
	scope         *security.TenantScope
	subscriptions *SubscriptionService
	audit         *audit.Logger
	ttl           time.Duration
	now           func() time.Time
	newCode       func() (string, error)
	logger        *slog.Logger
}

// NewInviteService creates a new invite registry
func NewInviteService(
	invites domain.InviteRepository,
	redemptions domain.RedemptionRepository,
	hubs domain.HubRepository,
	scope *security.TenantScope,
	subscriptions *SubscriptionService,
	auditLog *audit.Logger,
	ttl time.Duration,
	logger *slog.Logger,
) *InviteService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &InviteService{
		invites:       invites,
		redemptions:   redemptions,
		hubs:          hubs,
		scope:         scope,
		subscriptions: subscriptions,
		audit:         auditLog,
		ttl:           ttl,
		now:           time.Now,
		newCode:       GenerateInviteCode,
		logger:        logger,
	}
}

// Issue mints a new active invite.
func (s *InviteService) Issue(ctx context.Context, p *security.Principal, req IssueRequest) (*domain.Invite, error) {
	if err := security.RequireAdmin(p); err != nil {
		return nil, s.denied(ctx, p, err)
	}
	if !req.AccountType.Invitable() {
		return nil, domain.InvalidInput("account_type must be business or organization")
	}
	if req.AccountType == domain.AccountTypeOrganization {
		if err := security.RequireSuperAdmin(p); err != nil {
			return nil, s.denied(ctx, p, err)
		}
	}
	email, err := normalizeEmail(req.InvitedEmail)
	if err != nil {
		return nil, err
	}

	hubID, err := s.issueHub(ctx, p, req.HubID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, domain.InvalidInput("expires_at must be in the future")
		}
		expiresAt = *req.ExpiresAt
	}

	invite := &domain.Invite{
		InvitedEmail: email,
		AccountType:  req.AccountType,
		CreatedBy:    p.UserID,
		HubID:        hubID,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if hub, ok := p.HubScope(); ok {
		invite.CreatorHubID = &hub
	}
	for attempt := 1; ; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		invite.Code = code
		err = s.invites.Create(ctx, invite)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == codeInsertAttempts {
			return nil, err
		}
		s.logger.Warn("invite code collision, regenerating", slog.Int("attempt", attempt))
	}

	metrics.ObserveInviteIssued(string(invite.AccountType))
	s.audit.LogInviteIssued(ctx, deref(hubID), p.UserID, invite.Code, string(invite.AccountType))
	s.logger.Info("invite issued",
		slog.String("created_by", p.UserID),
		slog.String("hub_id", deref(hubID)),
		slog.String("account_type", string(invite.AccountType)),
	)
	return invite, nil
}

// issueHub forces hub-scoped staff into their own hub. Only super_admin may
// pick a hub or leave it empty; while impersonating, an omitted hub means
// the impersonated one.
func (s *InviteService) issueHub(ctx context.Context, p *security.Principal, requested *string) (*string, error) {
	if !p.IsSuperAdmin() {
		hub, ok := p.HubScope()
		if !ok {
			return nil, s.denied(ctx, p, fmt.Errorf("%w: issuer has no hub scope", domain.ErrPermissionDenied))
		}
		return &hub, nil
	}

	if requested != nil && strings.TrimSpace(*requested) != "" {
		hub := strings.TrimSpace(*requested)
		if _, err := s.hubs.GetByID(ctx, hub); err != nil {
			return nil, fmt.Errorf("hub %s: %w", hub, err)
		}
		return &hub, nil
	}

	scope, err := s.scope.EffectiveHub(ctx, p)
	if err != nil {
		return nil, err
	}
	if scope.Impersonating {
		hub := scope.HubID
		return &hub, nil
	}
	return nil, nil
}

// Validate is public. Unknown, used and expired codes all return Valid=false.
func (s *InviteService) Validate(ctx context.Context, code string) (*ValidateResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return &ValidateResult{}, nil
	}
	invite, err := s.invites.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return &ValidateResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !invite.ActiveAt(s.now()) {
		return &ValidateResult{}, nil
	}
	return &ValidateResult{Valid: true, Invite: invite}, nil
}

// Consume redeems code for userID. The caller must be userID or admin.
// Exactly one concurrent Consume of the same code succeeds; the rest see
// domain.ErrInviteInvalid.
func (s *InviteService) Consume(ctx context.Context, p *security.Principal, code, userID string) (*ConsumeResult, error) {
	if err := security.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.InvalidInput("user_id is required")
	}
	if p.UserID != userID && !p.IsAdmin() {
		return nil, s.denied(ctx, p, fmt.Errorf("%w: cannot consume on behalf of another user", domain.ErrPermissionDenied))
	}

	code = normalizeCode(code)
	snapshot, err := s.activeInvite(ctx, code)
	if err != nil {
		metrics.ObserveInviteConsumption("invalid")
		return nil, err
	}

	invite, err := s.redemptions.Redeem(ctx, domain.RedemptionRecord{
		Code:    code,
		UserID:  userID,
		Binding: hubBinding(snapshot, userID),
		Now:     s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInviteInvalid) {
			metrics.ObserveInviteConsumption("invalid")
		} else {
			metrics.ObserveInviteConsumption("error")
		}
		return nil, err
	}
	metrics.ObserveInviteConsumption("consumed")

	linked := linkedHub(invite)
	s.audit.LogInviteConsumed(ctx, deref(linked), userID, code)

	result := &ConsumeResult{Consumed: true, LinkedHubID: linked}
	if linked != nil {
		assignment := s.subscriptions.AutoAssign(ctx, userID)
		result.SubscriptionAssigned = assignment.Assigned
		if assignment.Assigned {
			plan := assignment.Plan
			result.AssignedPlan = &plan
		}
	}
	return result, nil
}

// List returns invites inside the caller's effective hub. An unscoped
// super_admin sees every hub.
func (s *InviteService) List(ctx context.Context, p *security.Principal, status domain.InviteStatus, limit int) ([]*domain.Invite, error) {
	if err := security.RequireAdmin(p); err != nil {
		return nil, s.denied(ctx, p, err)
	}
	scope, err := s.scope.EffectiveHub(ctx, p)
	if err != nil {
		return nil, err
	}
	filter := domain.InviteFilter{Status: status, Limit: limit}
	if scope.Scoped {
		hub := scope.HubID
		filter.HubID = &hub
	} else if !p.IsSuperAdmin() {
		return nil, s.denied(ctx, p, fmt.Errorf("%w: no tenant scope", domain.ErrPermissionDenied))
	}
	return s.invites.List(ctx, filter, s.now())
}

// activeInvite reads the invite and fails with the uniform invalid signal
// unless it is active now. The snapshot only feeds immutable fields; the
// conditional update remains the authority.
func (s *InviteService) activeInvite(ctx context.Context, code string) (*domain.Invite, error) {
	if code == "" {
		return nil, domain.ErrInviteInvalid
	}
	invite, err := s.invites.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInviteInvalid
	}
	if err != nil {
		return nil, err
	}
	if !invite.ActiveAt(s.now()) {
		return nil, domain.ErrInviteInvalid
	}
	return invite, nil
}

func (s *InviteService) denied(ctx context.Context, p *security.Principal, err error) error {
	userID := ""
	if p != nil {
		userID = p.UserID
	}
	if errors.Is(err, domain.ErrPermissionDenied) {
		s.audit.LogDenied(ctx, "", userID, err.Error())
	}
	return err
}

// hubBinding is the entrepreneur binding granted by a business invite whose
// creator held a hub-scoped binding. The hub is the creator's, not the
// invite's: a super_admin picking hub_id links nobody.
func hubBinding(invite *domain.Invite, userID string) *domain.RoleBinding {
	if invite.AccountType != domain.AccountTypeBusiness || invite.CreatorHubID == nil || *invite.CreatorHubID == "" {
		return nil
	}
	hub := *invite.CreatorHubID
	return &domain.RoleBinding{UserID: userID, Role: domain.RoleEntrepreneur, HubID: &hub}
}

func linkedHub(invite *domain.Invite) *string {
	if b := hubBinding(invite, ""); b != nil {
		return b.HubID
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.InvalidInput("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.InvalidInput("email is not valid")
	}
	return email, nil
}

func normalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
