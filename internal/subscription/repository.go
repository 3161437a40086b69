// Package subscription provides models and repository for business plan
// subscriptions.
package subscription

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSubscriptionNotFound is returned when a subscription is not found.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Repository defines methods for subscription persistence.
type Repository interface {
	Insert(sub *Subscription) error

	// GetByBusiness retrieves the live subscription for a business.
	// Returns ErrSubscriptionNotFound if the business has none.
	GetByBusiness(businessID string) (*Subscription, error)

	Update(sub *Subscription) error
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // Maps business ID -> Subscription
}

// NewInMemoryRepository creates a new in-memory subscription repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		subs: make(map[string]*Subscription),
	}
}

// Insert adds a new subscription for a business.
func (r *InMemoryRepository) Insert(sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	now := time.Now()
	if sub.CreatedAt == nil {
		sub.CreatedAt = &now
	}
	if sub.UpdatedAt == nil {
		sub.UpdatedAt = &now
	}

	copied := r.copyRecord(sub)
	r.subs[sub.BusinessID] = copied

	return nil
}

// GetByBusiness retrieves the live subscription for a business.
func (r *InMemoryRepository) GetByBusiness(businessID string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[businessID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	return r.copyRecord(sub), nil
}

// Update updates an existing subscription.
func (r *InMemoryRepository) Update(sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.BusinessID]; !ok {
		return ErrSubscriptionNotFound
	}

	now := time.Now()
	sub.UpdatedAt = &now

	r.subs[sub.BusinessID] = r.copyRecord(sub)

	return nil
}

// copyRecord creates a deep copy of a Subscription.
func (r *InMemoryRepository) copyRecord(sub *Subscription) *Subscription {
	copied := *sub
	if sub.TrialEndsAt != nil {
		t := *sub.TrialEndsAt
		copied.TrialEndsAt = &t
	}
	if sub.LastPaymentID != nil {
		id := *sub.LastPaymentID
		copied.LastPaymentID = &id
	}
	return &copied
}
