package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/identity"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
	"github.com/roxdxebec/jenga-biz/internal/security/auth"
	"github.com/roxdxebec/jenga-biz/internal/service"
)

type memInvites struct {
	mu      sync.Mutex
	invites map[string]*domain.Invite
}

func (m *memInvites) Create(_ context.Context, inv *domain.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[inv.Code]; ok {
		return domain.ErrConflict
	}
	cp := *inv
	m.invites[inv.Code] = &cp
	return nil
}

func (m *memInvites) GetByCode(_ context.Context, code string) (*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvites) Redeem(_ context.Context, rec domain.RedemptionRecord) (*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[rec.Code]
	if !ok || !inv.ActiveAt(rec.Now) {
		return nil, domain.ErrInviteInvalid
	}
	now, userID := rec.Now, rec.UserID
	inv.UsedAt, inv.UsedBy = &now, &userID
	cp := *inv
	return &cp, nil
}

func (m *memInvites) List(_ context.Context, filter domain.InviteFilter, now time.Time) ([]*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Invite
	for _, inv := range m.invites {
		if filter.HubID != nil && (inv.HubID == nil || *inv.HubID != *filter.HubID) {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	return out, nil
}

type memHubs struct{}

func (memHubs) GetByID(_ context.Context, id string) (*domain.Hub, error) {
	if id == "H" || id == "K" {
		return &domain.Hub{ID: id, Name: "Hub " + id}, nil
	}
	return nil, domain.ErrNotFound
}

// memSessions holds at most one session per super_admin.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.ImpersonationSession
}

func (m *memSessions) Activate(_ context.Context, s *domain.ImpersonationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.IsActive = true
	cp := *s
	m.sessions[s.SuperAdminID] = &cp
	return nil
}

func (m *memSessions) DeactivateAll(_ context.Context, superAdminID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[superAdminID]; !ok {
		return 0, nil
	}
	delete(m.sessions, superAdminID)
	return 1, nil
}

func (m *memSessions) FindActive(_ context.Context, superAdminID string, now time.Time) (*domain.ImpersonationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[superAdminID]
	if !ok || !s.ActiveAt(now) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) DeactivateExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type noPlans struct{}

func (noPlans) FindActivePlanByName(context.Context, string) (*domain.SubscriptionPlan, error) {
	return nil, nil
}
func (noPlans) CreateIfNoneActive(context.Context, *domain.SubscriptionBinding) (bool, error) {
	return false, nil
}
func (noPlans) ExpireLapsed(context.Context, time.Time) (int64, error) { return 0, nil }

type testServer struct {
	invites  *memInvites
	sessions *memSessions
	mux      *http.ServeMux
}

func newTestServer() *testServer {
	invites := &memInvites{invites: map[string]*domain.Invite{}}
	sessions := &memSessions{sessions: map[string]*domain.ImpersonationSession{}}
	auditLog := audit.NewLogger(nil)
	scope := security.NewTenantScope(sessions, nil, nil)
	subs := service.NewSubscriptionService(noPlans{}, service.SubscriptionConfig{Enabled: true}, nil)
	imp := service.NewImpersonationService(sessions, memHubs{}, auditLog, time.Hour, nil)

	inviteHandler := NewInviteHandler(service.NewInviteService(invites, invites, memHubs{}, scope, subs, auditLog, 0, nil), nil)
	impHandler := NewImpersonationHandler(imp, nil)
	profileHandler := NewProfileHandler(service.NewProfileService(scope, imp), scope, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/invites", inviteHandler.Issue)
	mux.HandleFunc("GET /api/invites", inviteHandler.List)
	mux.HandleFunc("GET /api/invites/{code}/validate", inviteHandler.Validate)
	mux.HandleFunc("POST /api/invites/consume", inviteHandler.Consume)
	mux.HandleFunc("POST /api/impersonation/start", impHandler.Start)
	mux.HandleFunc("GET /api/impersonation/status", impHandler.Status)
	mux.HandleFunc("GET /api/tenant/scope", profileHandler.Scope)
	mux.HandleFunc("GET /api/me", profileHandler.Me)
	return &testServer{invites: invites, sessions: sessions, mux: mux}
}

func (s *testServer) do(t *testing.T, p *security.Principal, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(security.ContextWithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func hubManager(userID, hub string) *security.Principal {
	return security.NewPrincipal(userID, userID+"@example.com", nil, []domain.RoleBinding{{UserID: userID, Role: domain.RoleHubManager, HubID: &hub}})
}

func superAdmin(userID string) *security.Principal {
	return security.NewPrincipal(userID, userID+"@example.com", nil, []domain.RoleBinding{{UserID: userID, Role: domain.RoleSuperAdmin}})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "authentication required"},
		{fmt.Errorf("%w: missing role", domain.ErrPermissionDenied), http.StatusForbidden, "permission_denied", "permission denied"},
		{domain.ErrInviteInvalid, http.StatusBadRequest, "invite_invalid", "invite code is not usable"},
		{domain.InvalidInput("email is not valid"), http.StatusBadRequest, "invalid_input", "invalid input: email is not valid"},
		{fmt.Errorf("hub x: %w", domain.ErrNotFound), http.StatusNotFound, "not_found", "resource not found"},
		{fmt.Errorf("%w: user_roles_pkey", domain.ErrConflict), http.StatusConflict, "conflict", "resource already exists"},
		{fmt.Errorf("%w: %w", domain.ErrIdentityCreationFailed, errors.New("upstream 503")), http.StatusBadGateway, "identity_creation_failed", "failed to create account"},
		{fmt.Errorf("%w: %w", domain.ErrSignupPersistenceFailed, errors.New(`relation "profiles" does not exist`)), http.StatusInternalServerError, "signup_persistence_failed", "failed to complete signup"},
		{errors.New(`pq: relation "invite_codes" does not exist`), http.StatusInternalServerError, "internal", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, testLogger(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			detail := decodeError(t, rec)
			assert.Equal(t, tc.code, detail.Code)
			assert.Equal(t, tc.message, detail.Message)
		})
	}
}

func TestIssueInviteRequiresAuthentication(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, nil, http.MethodPost, "/api/invites", IssueInviteRequest{InvitedEmail: "a@example.com", AccountType: "business"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Code)
}

func TestIssueInviteAsHubManager(t *testing.T) {
	s := newTestServer()
	other := "K"
	rec := s.do(t, hubManager("H1", "H"), http.MethodPost, "/api/invites", IssueInviteRequest{
		InvitedEmail: "Owner@Shop.co.ke",
		AccountType:  "business",
		HubID:        &other,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inv InviteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Len(t, inv.Code, 12)
	assert.Equal(t, "owner@shop.co.ke", inv.InvitedEmail)
	require.NotNil(t, inv.HubID)
	assert.Equal(t, "H", *inv.HubID)
	assert.Equal(t, "active", inv.Status)
	assert.Nil(t, inv.UsedAt)
}

func TestIssueOrganizationInviteDenied(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, hubManager("H1", "H"), http.MethodPost, "/api/invites", IssueInviteRequest{InvitedEmail: "ngo@example.org", AccountType: "organization"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", decodeError(t, rec).Code)
}

func TestIssueInviteMalformedBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/invites", bytes.NewBufferString("{not json"))
	req = req.WithContext(security.ContextWithPrincipal(req.Context(), hubManager("H1", "H")))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeError(t, rec).Code)
}

func TestValidateInviteIsUniform(t *testing.T) {
	s := newTestServer()
	hub := "H"
	s.invites.invites["GOODCODE2222"] = &domain.Invite{Code: "GOODCODE2222", InvitedEmail: "a@example.com", AccountType: domain.AccountTypeBusiness, HubID: &hub, ExpiresAt: time.Now().Add(time.Hour)}
	s.invites.invites["OLDCODE22222"] = &domain.Invite{Code: "OLDCODE22222", InvitedEmail: "b@example.com", AccountType: domain.AccountTypeBusiness, ExpiresAt: time.Now().Add(-time.Hour)}

	rec := s.do(t, nil, http.MethodGet, "/api/invites/goodcode2222/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok ValidateInviteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Valid)
	require.NotNil(t, ok.Invite)
	assert.Equal(t, "GOODCODE2222", ok.Invite.Code)

	for _, code := range []string{"OLDCODE22222", "UNKNOWN22222"} {
		rec := s.do(t, nil, http.MethodGet, "/api/invites/"+code+"/validate", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid":false}`, rec.Body.String())
	}
}

func TestConsumeInviteEndpoint(t *testing.T) {
	s := newTestServer()
	hub := "H"
	s.invites.invites["ABC123XYZ90"] = &domain.Invite{Code: "ABC123XYZ90", InvitedEmail: "u@example.com", AccountType: domain.AccountTypeBusiness, HubID: &hub, CreatorHubID: &hub, ExpiresAt: time.Now().Add(time.Hour)}
	user := security.NewPrincipal("U", "u@example.com", nil, nil)

	rec := s.do(t, user, http.MethodPost, "/api/invites/consume", ConsumeInviteRequest{Code: "ABC123XYZ90", UserID: "U"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"consumed":true,"linked_hub_id":"H","assigned_plan":null,"subscription_assigned":false}`, rec.Body.String())

	rec = s.do(t, user, http.MethodPost, "/api/invites/consume", ConsumeInviteRequest{Code: "ABC123XYZ90", UserID: "U"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invite_invalid", decodeError(t, rec).Code)
}

func TestListInvitesRejectsUnknownStatus(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, hubManager("H1", "H"), http.MethodGet, "/api/invites?status=revoked", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, hubManager("H1", "H"), http.MethodGet, "/api/invites?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"invites":[]}`, rec.Body.String())
}

func TestImpersonationFlow(t *testing.T) {
	s := newTestServer()
	root := superAdmin("root")

	rec := s.do(t, hubManager("H1", "H"), http.MethodPost, "/api/impersonation/start", StartImpersonationRequest{HubID: "K"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, root, http.MethodPost, "/api/impersonation/start", StartImpersonationRequest{HubID: "K"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, root, http.MethodGet, "/api/impersonation/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status ImpersonationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IsImpersonating)
	require.NotNil(t, status.Session)
	assert.Equal(t, "K", status.Session.TargetHubID)
	assert.Equal(t, "Hub K", status.Session.HubName)

	rec = s.do(t, root, http.MethodGet, "/api/tenant/scope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hubId":"K","scoped":true,"impersonating":true}`, rec.Body.String())

	rec = s.do(t, root, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, []string{"super_admin"}, me.Roles)
	require.NotNil(t, me.Impersonation)
	assert.True(t, me.Impersonation.IsImpersonating)
}

func TestDevLogin(t *testing.T) {
	users := identity.NewMemoryProvider()
	require.NoError(t, users.Seed("root", "root@jenga.dev", "letmein"))
	tm := auth.NewTokenManager("test-secret", "")
	h := NewLoginHandler(tm, users, nil)

	post := func(body LoginRequest) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dev/login", &buf))
		return rec
	}

	rec := post(LoginRequest{Email: "root@jenga.dev", Password: "letmein"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, err := tm.Verify(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "root", id.UserID)

	rec = post(LoginRequest{Email: "root@jenga.dev", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = post(LoginRequest{Email: "nobody@jenga.dev", Password: "letmein"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = post(LoginRequest{Email: "root@jenga.dev"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadiness(t *testing.T) {
	healthy := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    nil,
	}, nil)
	rec := httptest.NewRecorder()
	healthy.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"postgres":"ok","redis":"not configured"}}`, rec.Body.String())

	failing := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") }),
	}, nil)
	rec = httptest.NewRecorder()
	failing.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	failing.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
