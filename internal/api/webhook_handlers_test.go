package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sokoni-collective/sokoni/internal/payment"
	"github.com/stripe/stripe-go/v81"
)

// generateStripeSignature generates a valid Stripe webhook signature for testing.
func generateStripeSignature(payload []byte, secret string, timestamp int64) string {
	// Stripe signature format: t=timestamp,v1=signature
	signedPayload := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

// sessionEventBody builds a checkout session event payload of the given type.
func sessionEventBody(t *testing.T, eventType, sessionID, txRef, paymentStatus string) []byte {
	t.Helper()
	event := map[string]interface{}{
		"id":          "evt_" + sessionID,
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                  sessionID,
				"client_reference_id": txRef,
				"payment_status":      paymentStatus,
				"status":              "complete",
			},
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body
}

// webhookTestEnv bundles the payment test env with a webhook dedup store
// and signed handler.
type webhookTestEnv struct {
	*paymentTestEnv
	webhookRepo *payment.InMemoryWebhookRepository
	handler     *WebhookHandlers
	secret      string
}

func newWebhookTestEnv() *webhookTestEnv {
	env := &webhookTestEnv{
		paymentTestEnv: newPaymentTestEnv(),
		webhookRepo:    payment.NewInMemoryWebhookRepository(),
		secret:         "whsec_test_secret",
	}
	env.handler = NewWebhookHandlers(env.secret, env.service, env.webhookRepo, nil)
	return env
}

// deliver posts a signed event and returns the recorder.
func (env *webhookTestEnv) deliver(body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", generateStripeSignature(body, env.secret, time.Now().Unix()))

	w := httptest.NewRecorder()
	env.handler.HandleStripeWebhook(w, req)
	return w
}

func TestHandleStripeWebhook_MissingSignature(t *testing.T) {
	env := newWebhookTestEnv()
	body := sessionEventBody(t, "checkout.session.completed", "cs_1", "SKN-0-AAAAAA", "paid")

	req := httptest.NewRequest(http.MethodPost, "/internal/stripe", bytes.NewReader(body))
	// No Stripe-Signature header

	w := httptest.NewRecorder()
	env.handler.HandleStripeWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != ErrCodeBadRequest {
		t.Errorf("error code = %q, want %q", code, ErrCodeBadRequest)
	}
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	env := newWebhookTestEnv()
	body := sessionEventBody(t, "checkout.session.completed", "cs_1", "SKN-0-AAAAAA", "paid")

	req := httptest.NewRequest(http.MethodPost, "/internal/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1234567890,v1=invalidsignature")

	w := httptest.NewRecorder()
	env.handler.HandleStripeWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStripeWebhook_CompletedPaidConfirms(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	body := sessionEventBody(t, "checkout.session.completed", "cs_test_1", intent.TxRef, "paid")
	w := env.deliver(body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	updated, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if updated.Status != payment.StatusSuccess {
		t.Errorf("status = %q, want %q", updated.Status, payment.StatusSuccess)
	}
	if updated.OrderID == nil {
		t.Error("expected fulfillment to attach an order id")
	}

	processed, err := env.webhookRepo.HasProcessed(intent.TxRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if !processed {
		t.Error("confirmation was not recorded in the dedup store")
	}
}

func TestHandleStripeWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	body := sessionEventBody(t, "checkout.session.completed", "cs_test_1", intent.TxRef, "paid")
	for i := 0; i < 3; i++ {
		if w := env.deliver(body); w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected status 200, got %d", i, w.Code)
		}
	}

	sellerOrders, err := env.orders.ListBySeller("seller-1")
	if err != nil {
		t.Fatalf("ListBySeller() error = %v", err)
	}
	if len(sellerOrders) != 1 {
		t.Errorf("got %d orders after duplicate deliveries, want 1", len(sellerOrders))
	}

	product, err := env.products.GetByID(firstLineProductID(t, env, sellerOrders[0].ID))
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if product.Stock != 8 {
		t.Errorf("stock decremented to %d after duplicate deliveries, want 8", product.Stock)
	}
}

// firstLineProductID returns the product id on the order's first line item.
func firstLineProductID(t *testing.T, env *webhookTestEnv, orderID string) string {
	t.Helper()
	items, err := env.orders.ListLineItems(orderID)
	if err != nil {
		t.Fatalf("ListLineItems() error = %v", err)
	}
	if len(items) == 0 {
		t.Fatal("order has no line items")
	}
	return items[0].ProductID
}

// flakyPaymentRepo wraps a real payment repository and fails a number of
// guarded status transitions, simulating a transient storage error.
type flakyPaymentRepo struct {
	*payment.InMemoryRepository
	failures int
}

func (f *flakyPaymentRepo) UpdateStatusFromPending(id, newStatus string, gatewayRef *string) (*payment.PaymentIntent, bool, error) {
	if f.failures > 0 {
		f.failures--
		return nil, false, fmt.Errorf("storage unavailable")
	}
	return f.InMemoryRepository.UpdateStatusFromPending(id, newStatus, gatewayRef)
}

func TestHandleStripeWebhook_TransientFailureLeavesEventRetriable(t *testing.T) {
	env := newWebhookTestEnv()
	flaky := &flakyPaymentRepo{InMemoryRepository: env.payments, failures: 1}
	env.service = payment.NewService(flaky, env.products, env.carts, env.orders, env.subs, nil)
	env.handler = NewWebhookHandlers(env.secret, env.service, env.webhookRepo, nil)

	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	body := sessionEventBody(t, "checkout.session.completed", "cs_test_1", intent.TxRef, "paid")

	// First delivery hits the storage error. The payment stays pending and,
	// critically, the event must not be recorded as processed.
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	stored, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if stored.Status != payment.StatusPending {
		t.Fatalf("status = %q after failed confirmation, want %q", stored.Status, payment.StatusPending)
	}

	processed, err := env.webhookRepo.HasProcessed(intent.TxRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if processed {
		t.Fatal("failed confirmation must not claim the dedup slot")
	}

	// Redelivery with storage healed completes the confirmation.
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Fatalf("redelivery: expected status 200, got %d", w.Code)
	}

	stored, err = env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if stored.Status != payment.StatusSuccess {
		t.Errorf("status = %q after redelivery, want %q", stored.Status, payment.StatusSuccess)
	}
	if stored.OrderID == nil {
		t.Error("expected redelivery to run fulfillment")
	}

	processed, err = env.webhookRepo.HasProcessed(intent.TxRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if !processed {
		t.Error("successful redelivery was not recorded in the dedup store")
	}
}

func TestHandleStripeWebhook_CompletedUnpaidWaits(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	// Async payment method: session completes before the money moves.
	body := sessionEventBody(t, "checkout.session.completed", "cs_test_1", intent.TxRef, "unpaid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	updated, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if updated.Status != payment.StatusPending {
		t.Errorf("status = %q, want %q", updated.Status, payment.StatusPending)
	}

	processed, err := env.webhookRepo.HasProcessed(intent.TxRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if processed {
		t.Error("unpaid completion must not claim the dedup slot")
	}
}

func TestHandleStripeWebhook_AsyncPaymentSucceeded(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	body := sessionEventBody(t, "checkout.session.async_payment_succeeded", "cs_test_1", intent.TxRef, "paid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	updated, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if updated.Status != payment.StatusSuccess {
		t.Errorf("status = %q, want %q", updated.Status, payment.StatusSuccess)
	}
}

func TestHandleStripeWebhook_ExpiredCancels(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	body := sessionEventBody(t, "checkout.session.expired", "cs_test_1", intent.TxRef, "unpaid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	updated, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if updated.Status != payment.StatusCancelled {
		t.Errorf("status = %q, want %q", updated.Status, payment.StatusCancelled)
	}

	// Outcome events never claim the dedup slot.
	processed, err := env.webhookRepo.HasProcessed(intent.TxRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if processed {
		t.Error("expired event must not claim the dedup slot")
	}
}

func TestHandleStripeWebhook_LateFailureAfterSuccess(t *testing.T) {
	env := newWebhookTestEnv()
	env.seedCart(t, "buyer-1", "seller-1", 2500, 10, 2)
	intent := env.checkout(t, "buyer-1")

	paid := sessionEventBody(t, "checkout.session.completed", "cs_test_1", intent.TxRef, "paid")
	if w := env.deliver(paid); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	// A straggling failure for an already-confirmed payment is acknowledged
	// and dropped.
	failed := sessionEventBody(t, "checkout.session.async_payment_failed", "cs_test_1", intent.TxRef, "unpaid")
	if w := env.deliver(failed); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	updated, err := env.payments.GetByTxRef(intent.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if updated.Status != payment.StatusSuccess {
		t.Errorf("status = %q, want %q", updated.Status, payment.StatusSuccess)
	}
}

func TestHandleStripeWebhook_MissingTxRefIgnored(t *testing.T) {
	env := newWebhookTestEnv()

	body := sessionEventBody(t, "checkout.session.completed", "cs_orphan", "", "paid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestHandleStripeWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	env := newWebhookTestEnv()

	body := sessionEventBody(t, "checkout.session.completed", "cs_1", "SKN-0-ZZZZZZ", "paid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestHandleStripeWebhook_UnhandledEventType(t *testing.T) {
	env := newWebhookTestEnv()

	body := sessionEventBody(t, "invoice.paid", "in_1", "SKN-0-AAAAAA", "paid")
	if w := env.deliver(body); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}
