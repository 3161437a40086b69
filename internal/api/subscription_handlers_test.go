package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sokoni-collective/sokoni/internal/subscription"
)

func TestSubscriptionGet(t *testing.T) {
	subs := subscription.NewInMemoryRepository()
	handlers := NewSubscriptionHandlers(subs)

	now := time.Now().UTC()
	if err := subs.Insert(&subscription.Subscription{
		BusinessID:         "seller-1",
		PlanID:             "plan-pro",
		Status:             subscription.StatusActive,
		BillingCycle:       subscription.CycleMonthly,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}); err != nil {
		t.Fatalf("failed to insert subscription: %v", err)
	}

	t.Run("subscribed business", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/subscriptions/me", nil, "seller-1")
		w := httptest.NewRecorder()
		handlers.Get(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var got subscription.Subscription
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.PlanID != "plan-pro" {
			t.Errorf("plan_id = %q, want plan-pro", got.PlanID)
		}
		if got.Status != subscription.StatusActive {
			t.Errorf("status = %q, want %q", got.Status, subscription.StatusActive)
		}
	})

	t.Run("unsubscribed business", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/subscriptions/me", nil, "seller-2")
		w := httptest.NewRecorder()
		handlers.Get(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
		if code := decodeErrorCode(t, w); code != ErrCodeNotFound {
			t.Errorf("error code = %q, want %q", code, ErrCodeNotFound)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/subscriptions/me", nil, "")
		w := httptest.NewRecorder()
		handlers.Get(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})
}
