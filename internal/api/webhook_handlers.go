package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/middleware"
	"github.com/sokoni-collective/sokoni/internal/payment"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// WebhookHandlers holds dependencies for webhook-related HTTP handlers.
type WebhookHandlers struct {
	webhookSecret string
	service       *payment.Service
	webhookRepo   payment.WebhookRepository
	metrics       *payment.Metrics
}

// NewWebhookHandlers creates a new WebhookHandlers instance. metrics may be nil.
func NewWebhookHandlers(
	webhookSecret string,
	service *payment.Service,
	webhookRepo payment.WebhookRepository,
	metrics *payment.Metrics,
) *WebhookHandlers {
	return &WebhookHandlers{
		webhookSecret: webhookSecret,
		service:       service,
		webhookRepo:   webhookRepo,
		metrics:       metrics,
	}
}

// HandleStripeWebhook processes Stripe webhook events with signature verification.
// POST /internal/stripe
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "missing Stripe-Signature header")
		return
	}

	event, err := webhook.ConstructEvent(body, signature, h.webhookSecret)
	if err != nil {
		slog.WarnContext(ctx, "webhook signature verification failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid signature")
		return
	}

	// Log minimal event info (type and ID only, not full payload)
	slog.InfoContext(ctx, "webhook event received", "event_type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleSessionCompleted(ctx, event, signature)
	case "checkout.session.async_payment_succeeded":
		h.handleSessionPaid(ctx, event, signature)
	case "checkout.session.async_payment_failed":
		h.handleSessionOutcome(ctx, event, payment.StatusFailed)
	case "checkout.session.expired":
		h.handleSessionOutcome(ctx, event, payment.StatusCancelled)
	default:
		slog.InfoContext(ctx, "ignoring unhandled webhook event type", "event_type", event.Type, "event_id", event.ID)
	}

	// Always return 200 to acknowledge receipt; the gateway retries anything else.
	w.WriteHeader(http.StatusOK)
}

// handleSessionCompleted processes checkout.session.completed events. For
// async payment methods the session completes before the money moves, so
// the payment is only confirmed when the session reports paid.
func (h *WebhookHandlers) handleSessionCompleted(ctx context.Context, event stripe.Event, signature string) {
	session, txRef, ok := h.parseSession(ctx, event)
	if !ok {
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		slog.InfoContext(ctx, "session completed but not yet paid, awaiting async result",
			"tx_ref", txRef, "payment_status", session.PaymentStatus)
		return
	}

	h.confirm(ctx, event, session, txRef, signature)
}

// handleSessionPaid processes checkout.session.async_payment_succeeded events.
func (h *WebhookHandlers) handleSessionPaid(ctx context.Context, event stripe.Event, signature string) {
	session, txRef, ok := h.parseSession(ctx, event)
	if !ok {
		return
	}
	h.confirm(ctx, event, session, txRef, signature)
}

// confirm marks a payment successful exactly once per transaction reference.
// The dedup store is checked first so settled deliveries short-circuit, but
// the row is only written after the state change is durable: an event marked
// processed before a failed UpdateStatus would swallow every redelivery and
// strand the payment in pending. Deliveries racing inside that window fall
// through to the state machine, whose guarded pending -> success transition
// admits exactly one of them.
func (h *WebhookHandlers) confirm(ctx context.Context, event stripe.Event, session *stripe.CheckoutSession, txRef, signature string) {
	processed, err := h.webhookRepo.HasProcessed(txRef)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check webhook dedup", "tx_ref", txRef, "error", err)
		return
	}
	if processed {
		h.duplicate(ctx, event, txRef)
		return
	}

	if _, err := h.service.UpdateStatus(txRef, payment.StatusSuccess, session.ID); err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			slog.WarnContext(ctx, "webhook for unknown payment", "tx_ref", txRef, "event_id", event.ID)
			return
		}
		// The event stays unmarked so a redelivery or a client poll can
		// still complete the confirmation.
		slog.ErrorContext(ctx, "failed to confirm payment", "tx_ref", txRef, "error", err)
		return
	}

	if already, _, err := h.webhookRepo.MarkProcessed(txRef, string(event.Type), signature); err != nil {
		// The payment is already success; the idempotent no-op absorbs any
		// redelivery this failure lets through.
		slog.ErrorContext(ctx, "failed to record webhook event", "tx_ref", txRef, "error", err)
	} else if already {
		slog.InfoContext(ctx, "concurrent delivery recorded this event first", "tx_ref", txRef, "event_id", event.ID)
	}

	slog.InfoContext(ctx, "payment confirmed via webhook",
		"tx_ref", txRef,
		"session_id", session.ID,
		"event_id", event.ID)
}

// handleSessionOutcome applies a terminal non-success status. These events
// bypass the dedup store: a failed or expired delivery must never block a
// later confirmation for the same reference, and the state machine already
// rejects repeat applications.
func (h *WebhookHandlers) handleSessionOutcome(ctx context.Context, event stripe.Event, status string) {
	session, txRef, ok := h.parseSession(ctx, event)
	if !ok {
		return
	}

	if _, err := h.service.UpdateStatus(txRef, status, session.ID); err != nil {
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			slog.WarnContext(ctx, "webhook for unknown payment", "tx_ref", txRef, "event_id", event.ID)
		case errors.Is(err, payment.ErrInvalidTransition):
			// Payment already reached a terminal state; late delivery.
			slog.InfoContext(ctx, "ignoring late webhook for settled payment",
				"tx_ref", txRef, "status", status, "event_id", event.ID)
		default:
			slog.ErrorContext(ctx, "failed to apply webhook outcome", "tx_ref", txRef, "status", status, "error", err)
		}
		return
	}

	slog.InfoContext(ctx, "payment updated via webhook", "tx_ref", txRef, "status", status, "event_id", event.ID)
}

// parseSession decodes the checkout session and extracts our transaction
// reference from the client reference id, falling back to session metadata.
func (h *WebhookHandlers) parseSession(ctx context.Context, event stripe.Event) (*stripe.CheckoutSession, string, bool) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		slog.ErrorContext(ctx, "failed to parse checkout session", "event_id", event.ID, "error", err)
		return nil, "", false
	}

	txRef := session.ClientReferenceID
	if txRef == "" && session.Metadata != nil {
		txRef = session.Metadata["tx_ref"]
	}
	if txRef == "" {
		slog.WarnContext(ctx, "webhook session has no transaction reference", "event_id", event.ID, "session_id", session.ID)
		return nil, "", false
	}

	return &session, txRef, true
}

func (h *WebhookHandlers) duplicate(ctx context.Context, event stripe.Event, txRef string) {
	slog.InfoContext(ctx, "duplicate webhook delivery ignored", "tx_ref", txRef, "event_id", event.ID)
	h.metrics.DuplicateWebhook()
}
