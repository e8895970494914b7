package service

import (
	"context"
	"testing"
	"time"
)

func TestAutoAssignIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first := h.subscriptions.AutoAssign(ctx, "U")
	if !first.Assigned || first.Plan != "premium" {
		t.Fatalf("first assignment: %+v", first)
	}
	second := h.subscriptions.AutoAssign(ctx, "U")
	if second.Assigned || second.Plan != "" {
		t.Fatalf("second assignment should be a no-op: %+v", second)
	}
	if n := h.store.subscriptionCount("U"); n != 1 {
		t.Fatalf("expected one subscription, got %d", n)
	}
}

func TestAutoAssignAfterExpiry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.subscriptions.AutoAssign(ctx, "U")

	later := testNow.Add(31 * 24 * time.Hour)
	h.subscriptions.now = func() time.Time { return later }
	if n, err := h.store.ExpireLapsed(ctx, later); err != nil || n != 1 {
		t.Fatalf("expire lapsed: %d, %v", n, err)
	}
	if res := h.subscriptions.AutoAssign(ctx, "U"); !res.Assigned {
		t.Fatal("a lapsed subscription should not block a new one")
	}
}

func TestAutoAssignDisabled(t *testing.T) {
	store := newMemStore()
	svc := NewSubscriptionService(store, SubscriptionConfig{Enabled: false}, nil)
	if res := svc.AutoAssign(context.Background(), "U"); res.Assigned {
		t.Fatal("disabled service must not assign")
	}
	if store.subscriptionCount("U") != 0 {
		t.Fatal("no subscription expected")
	}
}
