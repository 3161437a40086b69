// Package api provides HTTP handlers for the Sokoni API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/auth"
	"github.com/sokoni-collective/sokoni/internal/middleware"
	"github.com/sokoni-collective/sokoni/internal/payment"
)

// PaymentHandlers holds dependencies for payment-related HTTP handlers.
type PaymentHandlers struct {
	service    *payment.Service
	gateway    payment.Client
	successURL string
	cancelURL  string
}

// NewPaymentHandlers creates a new PaymentHandlers instance.
func NewPaymentHandlers(service *payment.Service, gateway payment.Client, successURL, cancelURL string) *PaymentHandlers {
	return &PaymentHandlers{
		service:    service,
		gateway:    gateway,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CheckoutRequest represents the request body for starting a checkout.
// Amount is optional for order-kind checkouts: when present it is verified
// against the cart total, when zero the total is derived server-side.
type CheckoutRequest struct {
	Amount       int64                         `json:"amount,omitempty"`
	Currency     string                        `json:"currency"`
	Kind         string                        `json:"kind"`
	Subscription *payment.SubscriptionMetadata `json:"subscription,omitempty"`
}

// CheckoutResponse represents the response for a successful checkout start.
type CheckoutResponse struct {
	Payment    *payment.PaymentIntent `json:"payment"`
	SessionURL string                 `json:"session_url"`
}

// Checkout creates a payment intent and a hosted gateway checkout session.
// POST /payments/checkout
func (h *PaymentHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	intent, err := h.service.CreateIntent(payment.CreateIntentParams{
		UserID:         userID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Kind:           req.Kind,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Subscription:   req.Subscription,
	})
	if err != nil {
		h.writeServiceError(w, ctx, err)
		return
	}

	session, err := h.gateway.CreateCheckoutSession(&payment.CheckoutParams{
		TxRef:       intent.TxRef,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		Description: checkoutDescription(intent),
		CustomerRef: userID,
		SuccessURL:  h.successURL,
		CancelURL:   h.cancelURL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create checkout session", "tx_ref", intent.TxRef, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to create checkout session")
		return
	}

	if err := h.service.AttachGatewayRef(intent.ID, session.ID); err != nil {
		// The intent exists and the session is live; losing the link only
		// degrades polling, so log and continue.
		slog.ErrorContext(ctx, "failed to attach gateway ref", "tx_ref", intent.TxRef, "session_id", session.ID, "error", err)
	} else {
		intent.GatewayRef = &session.ID
	}

	WriteJSON(w, ctx, http.StatusCreated, CheckoutResponse{
		Payment:    intent,
		SessionURL: session.URL,
	})
}

// Verify polls the gateway for the session outcome and advances the payment
// accordingly. The client only triggers the check; the status written comes
// from the gateway, never from the request.
// POST /payments/{tx_ref}/verify
func (h *PaymentHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	txRef := r.PathValue("tx_ref")
	intent, err := h.service.GetByTxRef(txRef)
	if err != nil {
		h.writeServiceError(w, ctx, err)
		return
	}

	if !h.canAccess(ctx, userID, intent) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "payment belongs to another user")
		return
	}

	// Nothing to poll for once the payment left pending; return as-is so
	// the endpoint stays safe to retry.
	if intent.Status != payment.StatusPending {
		WriteJSON(w, ctx, http.StatusOK, intent)
		return
	}

	if intent.GatewayRef == nil || *intent.GatewayRef == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "payment has no gateway session to verify")
		return
	}

	status, err := h.gateway.GetSessionStatus(*intent.GatewayRef)
	if err != nil {
		slog.ErrorContext(ctx, "failed to poll gateway session", "tx_ref", txRef, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to verify payment")
		return
	}

	switch {
	case status.Paid:
		intent, err = h.service.UpdateStatus(txRef, payment.StatusSuccess, *intent.GatewayRef)
	case !status.Open:
		intent, err = h.service.UpdateStatus(txRef, payment.StatusFailed, *intent.GatewayRef)
	default:
		// Session still open, payment remains pending.
	}
	if err != nil {
		h.writeServiceError(w, ctx, err)
		return
	}

	WriteJSON(w, ctx, http.StatusOK, intent)
}

// Get returns a payment by transaction reference.
// GET /payments/{tx_ref}
func (h *PaymentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	intent, err := h.service.GetByTxRef(r.PathValue("tx_ref"))
	if err != nil {
		h.writeServiceError(w, ctx, err)
		return
	}

	if !h.canAccess(ctx, userID, intent) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "payment belongs to another user")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, intent)
}

// RefundRequest represents the request body for recording a refund.
type RefundRequest struct {
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Refund records a refund against a successful payment. Admin only.
// POST /payments/{id}/refund
func (h *PaymentHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	isAdmin := middleware.GetUserRole(ctx) == auth.RoleAdmin
	intent, err := h.service.RecordRefund(userID, isAdmin, r.PathValue("id"), req.Amount, req.Reason, req.Reference)
	if err != nil {
		h.writeServiceError(w, ctx, err)
		return
	}

	WriteJSON(w, ctx, http.StatusOK, intent)
}

// canAccess reports whether the user may view the payment: owners and admins.
func (h *PaymentHandlers) canAccess(ctx context.Context, userID string, intent *payment.PaymentIntent) bool {
	if intent.UserID == userID {
		return true
	}
	return middleware.GetUserRole(ctx) == auth.RoleAdmin
}

// checkoutDescription builds the human-readable line shown on the gateway's
// hosted page.
func checkoutDescription(intent *payment.PaymentIntent) string {
	if intent.Kind == payment.KindSubscription && intent.Metadata.Subscription != nil {
		return "Subscription plan " + intent.Metadata.Subscription.PlanID
	}
	return "Marketplace checkout " + intent.TxRef
}

// writeServiceError maps payment service errors onto HTTP responses.
func (h *PaymentHandlers) writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	var (
		status int
		code   string
	)

	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, payment.ErrNotAuthorized):
		status, code = http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, payment.ErrEmptyCart):
		status, code = http.StatusBadRequest, ErrCodeEmptyCart
	case errors.Is(err, payment.ErrProductUnavailable):
		status, code = http.StatusConflict, ErrCodeProductUnavailable
	case errors.Is(err, payment.ErrInsufficientStock):
		status, code = http.StatusConflict, ErrCodeInsufficientStock
	case errors.Is(err, payment.ErrAmountMismatch):
		status, code = http.StatusBadRequest, ErrCodeAmountMismatch
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidCurrency),
		errors.Is(err, payment.ErrInvalidKind),
		errors.Is(err, payment.ErrMissingSubscription):
		status, code = http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, payment.ErrInvalidTransition):
		status, code = http.StatusConflict, ErrCodeInvalidTransition
	case errors.Is(err, payment.ErrNotRefundable):
		status, code = http.StatusConflict, ErrCodeNotRefundable
	case errors.Is(err, payment.ErrRefundExceedsAmount):
		status, code = http.StatusBadRequest, ErrCodeRefundExceedsAmount
	default:
		slog.ErrorContext(ctx, "payment operation failed", "error", err)
		status, code = http.StatusInternalServerError, ErrCodeInternal
		ctx = middleware.SetErrorCode(ctx, code)
		WriteError(w, ctx, status, code, "internal error")
		return
	}

	ctx = middleware.SetErrorCode(ctx, code)
	WriteError(w, ctx, status, code, err.Error())
}
