// Package payment provides the payment pipeline service: idempotent intent
// creation, the status state machine, and the refund ledger.
package payment

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sokoni-collective/sokoni/internal/cart"
	"github.com/sokoni-collective/sokoni/internal/catalog"
	"github.com/sokoni-collective/sokoni/internal/order"
	"github.com/sokoni-collective/sokoni/internal/subscription"
)

// Service coordinates payment intents with the cart, catalog, order, and
// subscription stores. It owns the consistency guarantees of the pipeline:
// at most one intent per (user, idempotency key) and at most one fulfillment
// per intent, both achieved by idempotent, order-independent algorithms
// rather than locks.
type Service struct {
	payments    Repository
	products    catalog.ProductRepository
	carts       cart.Repository
	orders      order.Repository
	subs        subscription.Repository
	snapshotter *Snapshotter
	metrics     *Metrics
	txRefPrefix string
}

// NewService creates a new payment Service. metrics may be nil.
func NewService(
	payments Repository,
	products catalog.ProductRepository,
	carts cart.Repository,
	orders order.Repository,
	subs subscription.Repository,
	metrics *Metrics,
) *Service {
	return &Service{
		payments:    payments,
		products:    products,
		carts:       carts,
		orders:      orders,
		subs:        subs,
		snapshotter: NewSnapshotter(carts, products),
		metrics:     metrics,
		txRefPrefix: DefaultTxRefPrefix,
	}
}

// SetTxRefPrefix overrides the merchant prefix on generated transaction
// references.
func (s *Service) SetTxRefPrefix(prefix string) {
	if prefix != "" {
		s.txRefPrefix = prefix
	}
}

// CreateIntentParams are the caller-supplied inputs for intent creation.
type CreateIntentParams struct {
	UserID   string
	Amount   int64 // Minor currency units; for order kind it must match the snapshot total (0 = derive)
	Currency string
	Kind     string

	// IdempotencyKey collapses logically-duplicate creation requests into
	// one surviving record. Empty means no dedup is attempted.
	IdempotencyKey string

	// Subscription is required for subscription-kind intents.
	Subscription *SubscriptionMetadata
}

// CreateIntent creates a pending payment intent.
//
// For order-kind intents the user's cart is snapshotted into the intent
// metadata; the snapshot, not the live cart, is what fulfillment will later
// consume. The live cart and product stock are not touched.
//
// Idempotency uses insert-then-deterministic-tiebreak: the row is always
// inserted first, then all rows for (user, key) are listed, sorted by id
// ascending, and every row but the first is deleted. Concurrent duplicate
// submissions each apply the same rule independently and all converge on
// the same surviving row, which is returned. Do not "fix" this into a
// unique constraint or pre-insert lock; the post-insert reconciliation is
// what keeps the operation safe under partial failure.
func (s *Service) CreateIntent(params CreateIntentParams) (*PaymentIntent, error) {
	if !ValidKind(params.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, params.Kind)
	}
	if len(params.Currency) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, params.Currency)
	}

	var (
		amount   int64
		metadata Metadata
	)

	switch params.Kind {
	case KindOrder:
		lines, total, err := s.snapshotter.Build(params.UserID)
		if err != nil {
			return nil, err
		}
		if params.Amount != 0 && params.Amount != total {
			return nil, fmt.Errorf("%w: got %d, cart total %d", ErrAmountMismatch, params.Amount, total)
		}
		amount = total
		metadata = Metadata{Kind: KindOrder, Order: &OrderMetadata{Lines: lines}}

	case KindSubscription:
		if params.Amount <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, params.Amount)
		}
		sub := params.Subscription
		if sub == nil || sub.PlanID == "" || sub.BusinessID == "" || sub.BillingCycle == "" {
			return nil, ErrMissingSubscription
		}
		amount = params.Amount
		metadata = Metadata{Kind: KindSubscription, Subscription: sub}
	}

	intent := &PaymentIntent{
		TxRef:          NewTxRef(s.txRefPrefix),
		UserID:         params.UserID,
		Amount:         amount,
		Currency:       params.Currency,
		Status:         StatusPending,
		Kind:           params.Kind,
		Metadata:       metadata,
		IdempotencyKey: params.IdempotencyKey,
	}

	if err := s.payments.Insert(intent); err != nil {
		return nil, fmt.Errorf("failed to insert payment intent: %w", err)
	}

	if params.IdempotencyKey != "" {
		winner, err := s.resolveDuplicates(params.UserID, params.IdempotencyKey, intent)
		if err != nil {
			return nil, err
		}
		intent = winner
	}

	s.metrics.IntentCreated(params.Kind)
	return intent, nil
}

// resolveDuplicates applies the lowest-id-wins tiebreak across all intents
// sharing (user, key), deleting every loser. The surviving row is returned;
// it may not be the row this caller just inserted.
func (s *Service) resolveDuplicates(userID, key string, created *PaymentIntent) (*PaymentIntent, error) {
	rows, err := s.payments.ListByUserAndKey(userID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if len(rows) <= 1 {
		return created, nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	winner := rows[0]

	for _, loser := range rows[1:] {
		if err := s.payments.Delete(loser.ID); err != nil && err != ErrPaymentNotFound {
			// A concurrent caller may have deleted it already; anything
			// else is worth surfacing in logs but does not fail creation.
			slog.Error("failed to delete duplicate payment intent",
				"payment_id", loser.ID, "idempotency_key", key, "error", err)
		}
	}

	if winner.ID != created.ID {
		slog.Info("idempotency race lost, redirecting to canonical intent",
			"created_id", created.ID, "winner_id", winner.ID, "idempotency_key", key)
		s.metrics.IdempotencyRace()
	}

	return winner, nil
}

// GetByID retrieves a payment intent by id.
func (s *Service) GetByID(id string) (*PaymentIntent, error) {
	return s.payments.GetByID(id)
}

// GetByTxRef retrieves a payment intent by external transaction reference.
func (s *Service) GetByTxRef(txRef string) (*PaymentIntent, error) {
	return s.payments.GetByTxRef(txRef)
}

// AttachGatewayRef records the gateway-side reference (e.g. the checkout
// session id) on a freshly created intent.
func (s *Service) AttachGatewayRef(id, gatewayRef string) error {
	intent, err := s.payments.GetByID(id)
	if err != nil {
		return err
	}
	intent.GatewayRef = &gatewayRef
	return s.payments.Update(intent)
}

// UpdateStatus drives the payment state machine from a gateway confirmation
// (webhook or client poll). Lookup is by external transaction reference,
// since that is all the confirmation path holds.
//
// If the intent is already success, the unchanged record is returned: this
// idempotent no-op is the primary defense against duplicate webhook delivery
// triggering fulfillment twice. The transition itself is a compare-and-set
// in the repository, so confirmations racing past the read-side guard still
// produce exactly one pending -> success edge and exactly one fulfillment.
// On that single winning transition the fulfillment materializer runs
// synchronously and best-effort: its failures are logged, counted, and
// swallowed, never rolling back the status patch. Money already captured by
// the gateway must never be contradicted by a downstream bookkeeping
// failure.
func (s *Service) UpdateStatus(txRef, newStatus, gatewayRef string) (*PaymentIntent, error) {
	intent, err := s.payments.GetByTxRef(txRef)
	if err != nil {
		return nil, err
	}

	// Idempotent no-op: success is never overwritten.
	if intent.Status == StatusSuccess {
		return intent, nil
	}

	switch newStatus {
	case StatusSuccess, StatusFailed, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransition, newStatus)
	}
	if intent.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, intent.Status, newStatus)
	}

	var gw *string
	if gatewayRef != "" {
		gw = &gatewayRef
	}

	updated, won, err := s.payments.UpdateStatusFromPending(intent.ID, newStatus, gw)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	if !won {
		// A concurrent confirmation moved the intent first. Re-read and
		// apply the same idempotency rules to the settled state.
		current, err := s.payments.GetByTxRef(txRef)
		if err != nil {
			return nil, err
		}
		if current.Status == StatusSuccess {
			return current, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, newStatus)
	}
	s.metrics.Transition(newStatus)

	if newStatus == StatusSuccess {
		s.fulfill(updated)
	}

	return updated, nil
}

// RecordRefund records a partial or full refund against a successful
// payment. Admin-only; purely a financial record. It does not reverse
// inventory, cancel orders, or touch subscriptions.
func (s *Service) RecordRefund(actorID string, isAdmin bool, paymentID string, amount int64, reason, reference string) (*PaymentIntent, error) {
	if !isAdmin {
		return nil, ErrNotAuthorized
	}

	intent, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	// Only fully-settled payments may be refunded. The guard requires
	// status exactly success, so a payment cannot be refunded again after
	// a first partial refund.
	if intent.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRefundable, intent.Status)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount > intent.Amount {
		return nil, fmt.Errorf("%w: %d > %d", ErrRefundExceedsAmount, amount, intent.Amount)
	}

	cumulative := intent.RefundedAmount + amount
	status := StatusPartiallyRefunded
	if cumulative >= intent.Amount {
		status = StatusRefunded
	}

	now := time.Now()
	intent.Status = status
	intent.RefundedAmount = cumulative
	intent.RefundReason = &reason
	intent.RefundReference = &reference
	intent.RefundedBy = &actorID
	intent.RefundedAt = &now

	if err := s.payments.Update(intent); err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	s.metrics.Refund(status)

	slog.Info("refund recorded",
		"payment_id", intent.ID,
		"tx_ref", intent.TxRef,
		"amount", amount,
		"cumulative", cumulative,
		"status", status,
		"actor", actorID)

	return intent, nil
}
