// Package payment provides repository implementations for payment intent
// persistence.
package payment

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines methods for payment intent persistence.
type Repository interface {
	Insert(intent *PaymentIntent) error
	GetByID(id string) (*PaymentIntent, error)
	GetByTxRef(txRef string) (*PaymentIntent, error)
	Update(intent *PaymentIntent) error

	// UpdateStatusFromPending atomically transitions an intent out of
	// pending. gatewayRef, when non-nil, is recorded alongside the status.
	// Returns the updated intent and true when this caller won the
	// transition; (nil, false, nil) when the row is missing or no longer
	// pending. Racing confirmations must funnel through this so at most
	// one of them observes the pending -> success edge.
	UpdateStatusFromPending(id, newStatus string, gatewayRef *string) (*PaymentIntent, bool, error)

	// Delete removes an intent outright. Only used to retire losers of the
	// idempotency-key tiebreak; confirmed payments are never deleted.
	Delete(id string) error

	// ListByUserAndKey retrieves every intent for a (user, idempotency key)
	// pair, sorted by id ascending. More than one row means a creation race
	// occurred and the caller must apply the deterministic tiebreak.
	ListByUserAndKey(userID, idempotencyKey string) ([]*PaymentIntent, error)

	// ListPendingOlderThan retrieves pending intents created before cutoff,
	// for the optional expiry job.
	ListPendingOlderThan(cutoff time.Time) ([]*PaymentIntent, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	intents map[string]*PaymentIntent
}

// NewInMemoryRepository creates a new in-memory payment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		intents: make(map[string]*PaymentIntent),
	}
}

// Insert adds a new payment intent.
func (r *InMemoryRepository) Insert(intent *PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if intent.Status == "" {
		intent.Status = StatusPending
	}

	now := time.Now()
	if intent.CreatedAt == nil {
		intent.CreatedAt = &now
	}
	if intent.UpdatedAt == nil {
		intent.UpdatedAt = &now
	}

	r.intents[intent.ID] = copyIntent(intent)

	return nil
}

// GetByID retrieves a payment intent by ID.
func (r *InMemoryRepository) GetByID(id string) (*PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, ok := r.intents[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	return copyIntent(intent), nil
}

// GetByTxRef retrieves a payment intent by external transaction reference.
func (r *InMemoryRepository) GetByTxRef(txRef string) (*PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, intent := range r.intents {
		if intent.TxRef == txRef {
			return copyIntent(intent), nil
		}
	}

	return nil, ErrPaymentNotFound
}

// Update updates an existing payment intent.
func (r *InMemoryRepository) Update(intent *PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.intents[intent.ID]; !ok {
		return ErrPaymentNotFound
	}

	now := time.Now()
	intent.UpdatedAt = &now

	r.intents[intent.ID] = copyIntent(intent)

	return nil
}

// UpdateStatusFromPending atomically transitions an intent out of pending.
// The check and the write happen under one lock acquisition, the in-memory
// equivalent of a guarded UPDATE.
func (r *InMemoryRepository) UpdateStatusFromPending(id, newStatus string, gatewayRef *string) (*PaymentIntent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[id]
	if !ok || intent.Status != StatusPending {
		return nil, false, nil
	}

	now := time.Now()
	intent.Status = newStatus
	if gatewayRef != nil {
		intent.GatewayRef = copyStr(gatewayRef)
	}
	intent.UpdatedAt = &now

	return copyIntent(intent), true, nil
}

// Delete removes a payment intent.
func (r *InMemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.intents[id]; !ok {
		return ErrPaymentNotFound
	}

	delete(r.intents, id)
	return nil
}

// ListByUserAndKey retrieves every intent for a (user, idempotency key)
// pair, sorted by id ascending.
func (r *InMemoryRepository) ListByUserAndKey(userID, idempotencyKey string) ([]*PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PaymentIntent
	for _, intent := range r.intents {
		if intent.UserID == userID && intent.IdempotencyKey == idempotencyKey {
			result = append(result, copyIntent(intent))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ListPendingOlderThan retrieves pending intents created before cutoff.
func (r *InMemoryRepository) ListPendingOlderThan(cutoff time.Time) ([]*PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PaymentIntent
	for _, intent := range r.intents {
		if intent.Status == StatusPending && intent.CreatedAt != nil && intent.CreatedAt.Before(cutoff) {
			result = append(result, copyIntent(intent))
		}
	}

	return result, nil
}

// copyIntent creates a deep copy of a PaymentIntent, including the snapshot
// lines, to prevent external mutation.
func copyIntent(intent *PaymentIntent) *PaymentIntent {
	copied := *intent

	if intent.Metadata.Order != nil {
		lines := make([]CartLine, len(intent.Metadata.Order.Lines))
		copy(lines, intent.Metadata.Order.Lines)
		copied.Metadata.Order = &OrderMetadata{Lines: lines}
	}
	if intent.Metadata.Subscription != nil {
		sub := *intent.Metadata.Subscription
		copied.Metadata.Subscription = &sub
	}

	copied.GatewayRef = copyStr(intent.GatewayRef)
	copied.OrderID = copyStr(intent.OrderID)
	copied.SubscriptionID = copyStr(intent.SubscriptionID)
	copied.RefundReason = copyStr(intent.RefundReason)
	copied.RefundReference = copyStr(intent.RefundReference)
	copied.RefundedBy = copyStr(intent.RefundedBy)

	if intent.RefundedAt != nil {
		t := *intent.RefundedAt
		copied.RefundedAt = &t
	}

	return &copied
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
