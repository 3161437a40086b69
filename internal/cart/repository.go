// Package cart provides models and repository for per-user shopping carts.
package cart

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrItemNotFound is returned when a cart item is not found.
var ErrItemNotFound = errors.New("cart item not found")

// Repository defines methods for cart persistence.
type Repository interface {
	// Upsert adds a product to a user's cart, or replaces the quantity
	// if the product is already present.
	Upsert(item *Item) error

	// ListByUser retrieves all cart items for a user.
	ListByUser(userID string) ([]*Item, error)

	// Remove deletes a single product line from a user's cart.
	Remove(userID, productID string) error

	// ClearUser deletes every cart line for a user. Returns the number
	// of lines removed.
	ClearUser(userID string) (int, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item // Maps item ID -> Item
}

// NewInMemoryRepository creates a new in-memory cart repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Item),
	}
}

// Upsert adds a product to a user's cart, replacing any existing line for
// the same product.
func (r *InMemoryRepository) Upsert(item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// Replace an existing line for the same (user, product)
	for _, existing := range r.items {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity = item.Quantity
			existing.UpdatedAt = &now
			copied := *existing
			*item = copied
			return nil
		}
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt == nil {
		item.CreatedAt = &now
	}
	if item.UpdatedAt == nil {
		item.UpdatedAt = &now
	}

	copied := *item
	r.items[item.ID] = &copied

	return nil
}

// ListByUser retrieves all cart items for a user.
func (r *InMemoryRepository) ListByUser(userID string) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Item
	for _, item := range r.items {
		if item.UserID == userID {
			copied := *item
			result = append(result, &copied)
		}
	}

	return result, nil
}

// Remove deletes a single product line from a user's cart.
func (r *InMemoryRepository) Remove(userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, item := range r.items {
		if item.UserID == userID && item.ProductID == productID {
			delete(r.items, id)
			return nil
		}
	}

	return ErrItemNotFound
}

// ClearUser deletes every cart line for a user.
func (r *InMemoryRepository) ClearUser(userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, item := range r.items {
		if item.UserID == userID {
			delete(r.items, id)
			removed++
		}
	}

	return removed, nil
}
