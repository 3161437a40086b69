package payment

import "errors"

// Sentinel errors for the payment pipeline. Validation errors propagate to
// the caller as user-visible failures; errors raised after a payment has
// been confirmed are logged and swallowed instead (see Service.fulfill).
var (
	// ErrPaymentNotFound is returned when no intent matches the lookup.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrEmptyCart is returned when checkout is attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrProductUnavailable is returned when a cart line references a
	// product that is not active.
	ErrProductUnavailable = errors.New("product is not available")

	// ErrInsufficientStock is returned when a cart line requests more
	// units than the product currently has in stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidAmount is returned for non-positive or out-of-range amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountMismatch is returned when the caller-supplied amount does
	// not match the cart snapshot total.
	ErrAmountMismatch = errors.New("amount does not match cart total")

	// ErrInvalidCurrency is returned for malformed currency codes.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidKind is returned for unknown payment kinds.
	ErrInvalidKind = errors.New("invalid payment kind")

	// ErrMissingSubscription is returned when a subscription-kind intent
	// lacks plan/billing-cycle/business references.
	ErrMissingSubscription = errors.New("missing subscription metadata")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrNotRefundable is returned when refunding a payment whose status
	// is not exactly success. A partially refunded payment cannot be
	// refunded again; flagged as a product decision in DESIGN.md.
	ErrNotRefundable = errors.New("payment is not refundable")

	// ErrRefundExceedsAmount is returned when a refund exceeds the
	// original payment amount.
	ErrRefundExceedsAmount = errors.New("refund exceeds payment amount")

	// ErrNotAuthorized is returned when a non-admin attempts an
	// admin-only operation.
	ErrNotAuthorized = errors.New("not authorized")
)
