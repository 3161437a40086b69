package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/middleware"
	"github.com/sokoni-collective/sokoni/internal/subscription"
)

// SubscriptionHandlers holds dependencies for subscription HTTP handlers.
type SubscriptionHandlers struct {
	subs subscription.Repository
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers instance.
func NewSubscriptionHandlers(subs subscription.Repository) *SubscriptionHandlers {
	return &SubscriptionHandlers{subs: subs}
}

// Get returns the authenticated business's subscription. The account id of
// the caller is the business id; subscriptions are held by seller accounts.
// GET /subscriptions/me
func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	sub, err := h.subs.GetByBusiness(userID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "no subscription for this account")
			return
		}
		slog.ErrorContext(ctx, "failed to get subscription", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load subscription")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, sub)
}
