package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/reliability/retry"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func strp(s string) *string { return &s }

// memStore is an in-memory stand-in for every repository. Redeem does its
// compare-and-set under one mutex, like the conditional update.
type memStore struct {
	mu        sync.Mutex
	invites   map[string]*domain.Invite
	profiles  map[string]*domain.Profile
	bindings  []domain.RoleBinding
	sessions  []*domain.ImpersonationSession
	plans     []domain.SubscriptionPlan
	subs      []*domain.SubscriptionBinding
	hubs      map[string]*domain.Hub
	redeemErr error
	planErr   error
}

func newMemStore() *memStore {
	return &memStore{
		invites:  map[string]*domain.Invite{},
		profiles: map[string]*domain.Profile{},
		hubs: map[string]*domain.Hub{
			"H": {ID: "H", Name: "Nairobi Hub", Slug: "nairobi"},
			"K": {ID: "K", Name: "Kisumu Hub", Slug: "kisumu"},
		},
		plans: []domain.SubscriptionPlan{{ID: "plan-premium", Name: "premium", IsActive: true}},
	}
}

// InviteRepository

func (m *memStore) Create(_ context.Context, invite *domain.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[invite.Code]; ok {
		return fmt.Errorf("%w: invite_codes_pkey", domain.ErrConflict)
	}
	cp := *invite
	m.invites[invite.Code] = &cp
	return nil
}

func (m *memStore) GetByCode(_ context.Context, code string) (*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *invite
	return &cp, nil
}

func (m *memStore) markUsedLocked(code, userID string, now time.Time) (*domain.Invite, error) {
	invite, ok := m.invites[code]
	if !ok || invite.UsedAt != nil || !now.Before(invite.ExpiresAt) {
		return nil, domain.ErrInviteInvalid
	}
	used := now
	invite.UsedAt = &used
	invite.UsedBy = &userID
	cp := *invite
	return &cp, nil
}

func (m *memStore) List(_ context.Context, filter domain.InviteFilter, now time.Time) ([]*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Invite
	for _, invite := range m.invites {
		if filter.HubID != nil && (invite.HubID == nil || *invite.HubID != *filter.HubID) {
			continue
		}
		if filter.Status != "" && invite.StatusAt(now) != filter.Status {
			continue
		}
		cp := *invite
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// RedemptionRepository

func (m *memStore) Redeem(_ context.Context, rec domain.RedemptionRecord) (*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemErr != nil {
		return nil, m.redeemErr
	}
	invite, ok := m.invites[rec.Code]
	if !ok || invite.UsedAt != nil || !rec.Now.Before(invite.ExpiresAt) {
		return nil, domain.ErrInviteInvalid
	}
	if rec.Profile != nil {
		if _, exists := m.profiles[rec.Profile.UserID]; exists {
			return nil, fmt.Errorf("%w: profiles_pkey", domain.ErrConflict)
		}
	}
	out, err := m.markUsedLocked(rec.Code, rec.UserID, rec.Now)
	if err != nil {
		return nil, err
	}
	if rec.Profile != nil {
		p := *rec.Profile
		m.profiles[p.UserID] = &p
	}
	if rec.Binding != nil {
		m.insertLocked(*rec.Binding)
	}
	return out, nil
}

// RoleBindingRepository

func sameBinding(a, b domain.RoleBinding) bool {
	return a.UserID == b.UserID && a.Role == b.Role && deref(a.HubID) == deref(b.HubID)
}

func (m *memStore) insertLocked(b domain.RoleBinding) {
	for _, existing := range m.bindings {
		if sameBinding(existing, b) {
			return
		}
	}
	m.bindings = append(m.bindings, b)
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]domain.RoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RoleBinding
	for _, b := range m.bindings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, b domain.RoleBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(b)
	return nil
}

func (m *memStore) Delete(_ context.Context, b domain.RoleBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.bindings {
		if sameBinding(existing, b) {
			m.bindings = append(m.bindings[:i], m.bindings[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) bindingCount(userID string, role domain.Role) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bindings {
		if b.UserID == userID && b.Role == role {
			n++
		}
	}
	return n
}

// ProfileRepository

func (m *memStore) GetByUserID(_ context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	p.AccountType = domain.AccountTypeDeactivated
	kept := m.bindings[:0]
	for _, b := range m.bindings {
		if b.UserID != userID {
			kept = append(kept, b)
		}
	}
	m.bindings = kept
	return nil
}

// HubRepository

func (m *memStore) GetByID(_ context.Context, id string) (*domain.Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub, ok := m.hubs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *hub
	return &cp, nil
}

// ImpersonationRepository

func (m *memStore) Activate(_ context.Context, s *domain.ImpersonationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.SuperAdminID == s.SuperAdminID {
			existing.IsActive = false
		}
	}
	s.IsActive = true
	cp := *s
	m.sessions = append(m.sessions, &cp)
	return nil
}

func (m *memStore) DeactivateAll(_ context.Context, superAdminID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.SuperAdminID == superAdminID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindActive(_ context.Context, superAdminID string, now time.Time) (*domain.ImpersonationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.SuperAdminID == superAdminID && s.ActiveAt(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.IsActive && !now.Before(s.ExpiresAt) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) activeSessions(superAdminID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.SuperAdminID == superAdminID && s.IsActive {
			n++
		}
	}
	return n
}

// SubscriptionRepository

func (m *memStore) FindActivePlanByName(_ context.Context, name string) (*domain.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planErr != nil {
		return nil, m.planErr
	}
	for _, p := range m.plans {
		if p.IsActive && strings.EqualFold(p.Name, name) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateIfNoneActive(_ context.Context, b *domain.SubscriptionBinding) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == b.UserID && s.Status == domain.SubscriptionStatusActive && s.PeriodEnd.After(b.PeriodStart) {
			return false, nil
		}
	}
	cp := *b
	m.subs = append(m.subs, &cp)
	return true, nil
}

func (m *memStore) ExpireLapsed(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.subs {
		if s.Status == domain.SubscriptionStatusActive && !now.Before(s.PeriodEnd) {
			s.Status = domain.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memStore) subscriptionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// fakeProvider is an identity provider whose deletes can be made to fail.
type fakeProvider struct {
	mu             sync.Mutex
	users          map[string]domain.Identity
	seq            int
	createErr      error
	deleteFailures int
	deleteCalls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: map[string]domain.Identity{}}
}

func (f *fakeProvider) CreateUser(_ context.Context, in domain.NewIdentity) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	id := domain.Identity{ID: fmt.Sprintf("user-%d", f.seq), Email: in.Email, Metadata: in.Metadata}
	f.users[id.ID] = id
	return &id, nil
}

func (f *fakeProvider) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return errors.New("provider unavailable")
	}
	if _, ok := f.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeProvider) GetUser(_ context.Context, id string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (f *fakeProvider) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

type memOrphans struct {
	mu  sync.Mutex
	ids []string
}

func (o *memOrphans) Push(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
	return nil
}

func (o *memOrphans) List(context.Context) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ids...), nil
}

func (o *memOrphans) Remove(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, v := range o.ids {
		if v == id {
			o.ids = append(o.ids[:i], o.ids[i+1:]...)
			break
		}
	}
	return nil
}

func principalWith(userID string, bindings ...domain.RoleBinding) *security.Principal {
	for i := range bindings {
		bindings[i].UserID = userID
	}
	return security.NewPrincipal(userID, userID+"@example.com", nil, bindings)
}

func superAdmin(userID string) *security.Principal {
	return principalWith(userID, domain.RoleBinding{Role: domain.RoleSuperAdmin})
}

func hubManager(userID, hub string) *security.Principal {
	return principalWith(userID, domain.RoleBinding{Role: domain.RoleHubManager, HubID: strp(hub)})
}

type harness struct {
	store         *memStore
	provider      *fakeProvider
	orphans       *memOrphans
	scope         *security.TenantScope
	subscriptions *SubscriptionService
	invites       *InviteService
	signup        *SignupService
	impersonation *ImpersonationService
	roles         *RoleService
}

func newHarness() *harness {
	store := newMemStore()
	provider := newFakeProvider()
	orphans := &memOrphans{}
	auditLog := audit.NewLogger(nil)
	scope := security.NewTenantScope(store, fixedNow, nil)

	subs := NewSubscriptionService(store, SubscriptionConfig{PlanName: "premium", Period: 30 * 24 * time.Hour, Enabled: true}, nil)
	subs.now = fixedNow

	invites := NewInviteService(store, store, store, scope, subs, auditLog, 14*24*time.Hour, nil)
	invites.now = fixedNow

	signup := NewSignupService(store, store, provider, orphans, subs, auditLog, fastRetry(3), nil)
	signup.now = fixedNow

	imp := NewImpersonationService(store, store, auditLog, time.Hour, nil)
	imp.now = fixedNow

	return &harness{
		store:         store,
		provider:      provider,
		orphans:       orphans,
		scope:         scope,
		subscriptions: subs,
		invites:       invites,
		signup:        signup,
		impersonation: imp,
		roles:         NewRoleService(store, store, scope, auditLog, nil),
	}
}

func (h *harness) seedInvite(code, email string, accountType domain.AccountType, hub *string, expiresAt time.Time) {
	h.store.invites[code] = &domain.Invite{
		Code:         code,
		InvitedEmail: email,
		AccountType:  accountType,
		CreatedBy:    "H1",
		HubID:        hub,
		CreatorHubID: hub,
		ExpiresAt:    expiresAt,
		CreatedAt:    testNow.Add(-time.Hour),
	}
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}
