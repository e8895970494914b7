package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

func signupHarness() *harness {
	h := newHarness()
	h.seedInvite("SIGNUP222222", "owner@shop.co.ke", domain.AccountTypeBusiness, strp("H"), testNow.Add(14*24*time.Hour))
	return h
}

func validSignup() SignupRequest {
	return SignupRequest{
		Email:      "Owner@Shop.co.ke",
		Password:   "correct horse battery staple",
		FullName:   "Wanjiru Kamau",
		InviteCode: "signup222222",
	}
}

func TestSignupCreatesIdentityProfileAndBinding(t *testing.T) {
	h := signupHarness()

	res, err := h.signup.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !res.Created || res.UserID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := h.provider.GetUser(context.Background(), res.UserID); err != nil {
		t.Fatalf("identity missing: %v", err)
	}
	profile := h.store.profiles[res.UserID]
	if profile == nil {
		t.Fatal("profile not created")
	}
	if profile.Email != "owner@shop.co.ke" || profile.AccountType != domain.AccountTypeBusiness || !profile.ProfileComplete {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if deref(h.store.invites["SIGNUP222222"].UsedBy) != res.UserID {
		t.Fatal("invite not consumed by the new user")
	}
	if h.store.bindingCount(res.UserID, domain.RoleEntrepreneur) != 1 {
		t.Fatal("entrepreneur binding missing")
	}
	if h.store.subscriptionCount(res.UserID) != 1 {
		t.Fatal("subscription not assigned")
	}
}

func TestSignupRejectsBadInviteBeforeCallingProvider(t *testing.T) {
	cases := map[string]func(h *harness, req *SignupRequest){
		"unknown code": func(h *harness, req *SignupRequest) {
			req.InviteCode = "NOPE22222222"
		},
		"email mismatch": func(h *harness, req *SignupRequest) {
			req.Email = "someone.else@example.com"
		},
		"used": func(h *harness, req *SignupRequest) {
			used := testNow.Add(-time.Hour)
			h.store.invites["SIGNUP222222"].UsedAt = &used
		},
		"expired": func(h *harness, req *SignupRequest) {
			h.store.invites["SIGNUP222222"].ExpiresAt = testNow
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := signupHarness()
			req := validSignup()
			mutate(h, &req)

			_, err := h.signup.Signup(context.Background(), req)
			if !errors.Is(err, domain.ErrInviteInvalid) {
				t.Fatalf("expected invite invalid, got %v", err)
			}
			if h.provider.createCount() != 0 {
				t.Fatal("provider must not be called for an unusable invite")
			}
		})
	}
}

func TestSignupValidatesInput(t *testing.T) {
	h := signupHarness()
	ctx := context.Background()

	req := validSignup()
	req.Password = ""
	if _, err := h.signup.Signup(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing password: got %v", err)
	}

	req = validSignup()
	req.AccountType = domain.AccountTypeOrganization
	if _, err := h.signup.Signup(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("account type mismatch: got %v", err)
	}
	if h.provider.createCount() != 0 {
		t.Fatal("provider must not be called for invalid input")
	}
}

func TestSignupIdentityCreationFailure(t *testing.T) {
	h := signupHarness()
	h.provider.createErr = errors.New("email already registered")

	_, err := h.signup.Signup(context.Background(), validSignup())
	if !errors.Is(err, domain.ErrIdentityCreationFailed) {
		t.Fatalf("expected identity creation failed, got %v", err)
	}
	if h.store.invites["SIGNUP222222"].UsedAt != nil {
		t.Fatal("invite must remain active")
	}
}

func TestSignupPersistenceFailureDeletesIdentity(t *testing.T) {
	h := signupHarness()
	dbErr := errors.New("deadlock detected")
	h.store.redeemErr = dbErr

	_, err := h.signup.Signup(context.Background(), validSignup())
	if !errors.Is(err, domain.ErrSignupPersistenceFailed) || !errors.Is(err, dbErr) {
		t.Fatalf("expected persistence failure wrapping the original error, got %v", err)
	}
	if _, gerr := h.provider.GetUser(context.Background(), "user-1"); !errors.Is(gerr, domain.ErrNotFound) {
		t.Fatalf("identity should be gone, got %v", gerr)
	}
	if len(h.orphans.ids) != 0 {
		t.Fatalf("nothing should be orphaned: %v", h.orphans.ids)
	}
	if h.store.invites["SIGNUP222222"].UsedAt != nil || len(h.store.profiles) != 0 {
		t.Fatal("no relational writes may survive")
	}
}

func TestSignupCompensationRetries(t *testing.T) {
	h := signupHarness()
	h.store.redeemErr = errors.New("connection refused")
	h.provider.deleteFailures = 2

	_, err := h.signup.Signup(context.Background(), validSignup())
	if !errors.Is(err, domain.ErrSignupPersistenceFailed) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if h.provider.deleteCalls != 3 {
		t.Fatalf("expected 3 delete attempts, got %d", h.provider.deleteCalls)
	}
	if _, gerr := h.provider.GetUser(context.Background(), "user-1"); !errors.Is(gerr, domain.ErrNotFound) {
		t.Fatal("identity should be deleted on the third attempt")
	}
	if len(h.orphans.ids) != 0 {
		t.Fatal("successful compensation must not queue an orphan")
	}
}

func TestSignupCompensationExhaustedQueuesOrphan(t *testing.T) {
	h := signupHarness()
	dbErr := errors.New("connection refused")
	h.store.redeemErr = dbErr
	h.provider.deleteFailures = 100

	_, err := h.signup.Signup(context.Background(), validSignup())
	if !errors.Is(err, domain.ErrSignupPersistenceFailed) || !errors.Is(err, dbErr) {
		t.Fatalf("caller must still see the persistence failure, got %v", err)
	}
	if h.provider.deleteCalls != 3 {
		t.Fatalf("expected bounded attempts, got %d", h.provider.deleteCalls)
	}
	if len(h.orphans.ids) != 1 || h.orphans.ids[0] != "user-1" {
		t.Fatalf("orphan not queued: %v", h.orphans.ids)
	}
}

func TestSignupCompensationSurvivesCancelledRequest(t *testing.T) {
	h := signupHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.store.redeemErr = errors.New("statement timeout")
	h.provider.deleteFailures = 1
	cancel()

	if _, err := h.signup.Signup(ctx, validSignup()); err == nil {
		t.Fatal("expected an error")
	}
	if _, gerr := h.provider.GetUser(context.Background(), "user-1"); !errors.Is(gerr, domain.ErrNotFound) {
		t.Fatal("compensation should finish after the request is cancelled")
	}
}

func TestSignupLosingRaceIsInviteInvalid(t *testing.T) {
	h := signupHarness()
	h.store.redeemErr = domain.ErrInviteInvalid

	_, err := h.signup.Signup(context.Background(), validSignup())
	if got := domain.Classify(err); got != domain.ErrInviteInvalid {
		t.Fatalf("classified as %v, want invite_invalid", got)
	}
	if _, gerr := h.provider.GetUser(context.Background(), "user-1"); !errors.Is(gerr, domain.ErrNotFound) {
		t.Fatal("losing identity must be deleted")
	}
}

func TestConcurrentSignupsOnOneInvite(t *testing.T) {
	h := signupHarness()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.signup.Signup(context.Background(), validSignup())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if domain.Classify(err) != domain.ErrInviteInvalid {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected one successful signup, got %d", successes)
	}
	h.provider.mu.Lock()
	remaining := len(h.provider.users)
	h.provider.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("losing identities must be compensated, %d remain", remaining)
	}
	if len(h.store.profiles) != 1 {
		t.Fatalf("expected one profile, got %d", len(h.store.profiles))
	}
}
