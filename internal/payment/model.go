// Package payment implements the payment-to-fulfillment pipeline: idempotent
// intent creation, cart snapshotting, the payment status state machine,
// webhook deduplication, fulfillment materialization, and refund bookkeeping.
package payment

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payment status constants.
const (
	StatusPending           = "pending"
	StatusSuccess           = "success"
	StatusFailed            = "failed"
	StatusCancelled         = "cancelled"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

// Payment kind constants.
const (
	KindOrder        = "order"
	KindSubscription = "subscription"
)

// DefaultTxRefPrefix is the prefix used for generated transaction references.
const DefaultTxRefPrefix = "SKN"

// PaymentIntent represents one attempt to collect money for either a cart
// checkout or a subscription, independent of the orders or subscription it
// may later materialize into.
type PaymentIntent struct {
	ID       string `json:"id"`
	TxRef    string `json:"tx_ref"` // External transaction reference shared with the gateway
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`   // Minor currency units
	Currency string `json:"currency"` // ISO 4217 code
	Status   string `json:"status"`   // pending, success, failed, cancelled, refunded, partially_refunded
	Kind     string `json:"kind"`     // order, subscription

	Metadata       Metadata `json:"metadata"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`

	GatewayRef     *string `json:"gateway_ref,omitempty"`     // Gateway-side reference (checkout session id)
	OrderID        *string `json:"order_id,omitempty"`        // First order created at fulfillment
	SubscriptionID *string `json:"subscription_id,omitempty"` // Subscription activated at fulfillment

	RefundedAmount  int64      `json:"refunded_amount,omitempty"`
	RefundReason    *string    `json:"refund_reason,omitempty"`
	RefundReference *string    `json:"refund_reference,omitempty"`
	RefundedBy      *string    `json:"refunded_by,omitempty"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Metadata is the kind-keyed payload attached to a PaymentIntent. Exactly one
// of the branch pointers is set, matching Kind.
type Metadata struct {
	Kind         string                `json:"kind"`
	Order        *OrderMetadata        `json:"order,omitempty"`
	Subscription *SubscriptionMetadata `json:"subscription,omitempty"`
}

// OrderMetadata holds the immutable cart snapshot captured at intent
// creation. It is the authoritative source for fulfillment, decoupled from
// live cart and product state.
type OrderMetadata struct {
	Lines []CartLine `json:"lines"`
}

// CartLine is one snapshot entry. Unit price is the product price at
// snapshot time, not the cart-time price.
type CartLine struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	SellerID    string `json:"seller_id"`
	ProductName string `json:"product_name"`
}

// SubscriptionMetadata carries plan/billing references for subscription-kind
// payments.
type SubscriptionMetadata struct {
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
	BusinessID   string `json:"business_id"`
}

// Terminal reports whether a status admits no further confirmation-path
// transitions.
func Terminal(status string) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// ValidKind reports whether kind is a known payment kind.
func ValidKind(kind string) bool {
	return kind == KindOrder || kind == KindSubscription
}

// txRefCharset is the alphabet for the random suffix: uppercase base36.
const txRefCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTxRef generates an external transaction reference:
// {prefix}-{unix millis}-{6-char uppercase base36 random}.
// References are globally unique and safe to show to users and support.
func NewTxRef(prefix string) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failing is effectively unrecoverable elsewhere; fall
		// back to UUID bytes rather than panicking in the checkout path.
		copy(suffix, uuid.New().String())
	}
	for i := range suffix {
		suffix[i] = txRefCharset[int(suffix[i])%len(txRefCharset)]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}
