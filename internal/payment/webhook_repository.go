// Package payment provides webhook event tracking for duplicate-delivery
// tolerance.
package payment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records a processed gateway callback, keyed by external
// transaction reference. Existence implies "already processed"; rows are
// written once, never updated, and garbage-collected by age.
type WebhookEvent struct {
	ID          string
	TxRef       string // External transaction reference the callback referred to
	EventType   string // Gateway event type
	Signature   string // Gateway signature header, kept for audit
	ProcessedAt time.Time
}

// DefaultRetention is how long processed webhook events are kept before the
// cleanup job removes them. Purely janitorial; dedup correctness does not
// depend on it.
const DefaultRetention = 30 * 24 * time.Hour

// WebhookRepository defines methods for webhook event tracking.
type WebhookRepository interface {
	// HasProcessed checks if a callback for txRef has already been processed.
	HasProcessed(txRef string) (bool, error)

	// MarkProcessed records a callback as processed. It re-checks for an
	// existing row immediately before insert; if one exists it returns
	// alreadyProcessed=true with the existing event id and inserts nothing.
	MarkProcessed(txRef, eventType, signature string) (alreadyProcessed bool, eventID string, err error)

	// DeleteOlderThan removes events processed before now-retention.
	// Returns the number of rows deleted.
	DeleteOlderThan(retention time.Duration) (int64, error)
}

// InMemoryWebhookRepository implements WebhookRepository with in-memory storage.
type InMemoryWebhookRepository struct {
	mu     sync.RWMutex
	events map[string]*WebhookEvent // Maps tx_ref -> WebhookEvent
}

// NewInMemoryWebhookRepository creates a new in-memory webhook repository.
func NewInMemoryWebhookRepository() *InMemoryWebhookRepository {
	return &InMemoryWebhookRepository{
		events: make(map[string]*WebhookEvent),
	}
}

// HasProcessed checks if a callback for txRef has already been processed.
func (r *InMemoryWebhookRepository) HasProcessed(txRef string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.events[txRef]
	return exists, nil
}

// MarkProcessed records a callback as processed, re-checking for duplicates
// immediately before insert.
func (r *InMemoryWebhookRepository) MarkProcessed(txRef, eventType, signature string) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.events[txRef]; exists {
		return true, existing.ID, nil
	}

	event := &WebhookEvent{
		ID:          uuid.New().String(),
		TxRef:       txRef,
		EventType:   eventType,
		Signature:   signature,
		ProcessedAt: time.Now(),
	}
	r.events[txRef] = event

	return false, event.ID, nil
}

// DeleteOlderThan removes events processed before now-retention.
func (r *InMemoryWebhookRepository) DeleteOlderThan(retention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	deleted := int64(0)

	for txRef, event := range r.events {
		if event.ProcessedAt.Before(cutoff) {
			delete(r.events, txRef)
			deleted++
		}
	}

	return deleted, nil
}
