// Package order provides models and repository for seller orders.
package order

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOrderNotFound is returned when an order is not found.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Repository defines methods for order persistence.
type Repository interface {
	Insert(order *Order) error
	InsertLineItem(item *LineItem) error
	GetByID(id string) (*Order, error)
	ListLineItems(orderID string) ([]*LineItem, error)
	ListByBuyer(buyerID string) ([]*Order, error)
	ListBySeller(sellerID string) ([]*Order, error)

	// UpdateStatus moves an order through the status state machine.
	// Returns ErrInvalidTransition for illegal moves.
	UpdateStatus(id, status string) (*Order, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu        sync.RWMutex
	orders    map[string]*Order
	lineItems map[string][]*LineItem // Maps order ID -> line items
}

// NewInMemoryRepository creates a new in-memory order repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		orders:    make(map[string]*Order),
		lineItems: make(map[string][]*LineItem),
	}
}

// Insert adds a new order.
func (r *InMemoryRepository) Insert(order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = StatusPending
	}

	now := time.Now()
	if order.CreatedAt == nil {
		order.CreatedAt = &now
	}
	if order.UpdatedAt == nil {
		order.UpdatedAt = &now
	}

	copied := *order
	r.orders[order.ID] = &copied

	return nil
}

// InsertLineItem adds a line item under an existing order.
func (r *InMemoryRepository) InsertLineItem(item *LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[item.OrderID]; !ok {
		return ErrOrderNotFound
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	now := time.Now()
	if item.CreatedAt == nil {
		item.CreatedAt = &now
	}

	copied := *item
	r.lineItems[item.OrderID] = append(r.lineItems[item.OrderID], &copied)

	return nil
}

// GetByID retrieves an order by ID.
func (r *InMemoryRepository) GetByID(id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	copied := *order
	return &copied, nil
}

// ListLineItems retrieves the line items belonging to an order.
func (r *InMemoryRepository) ListLineItems(orderID string) ([]*LineItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.orders[orderID]; !ok {
		return nil, ErrOrderNotFound
	}

	items := r.lineItems[orderID]
	result := make([]*LineItem, 0, len(items))
	for _, item := range items {
		copied := *item
		result = append(result, &copied)
	}

	return result, nil
}

// ListByBuyer retrieves all orders placed by a buyer, newest first.
func (r *InMemoryRepository) ListByBuyer(buyerID string) ([]*Order, error) {
	return r.list(func(o *Order) bool { return o.BuyerID == buyerID })
}

// ListBySeller retrieves all orders received by a seller, newest first.
func (r *InMemoryRepository) ListBySeller(sellerID string) ([]*Order, error) {
	return r.list(func(o *Order) bool { return o.SellerID == sellerID })
}

func (r *InMemoryRepository) list(match func(*Order) bool) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Order
	for _, order := range r.orders {
		if match(order) {
			copied := *order
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(*result[j].CreatedAt)
	})

	return result, nil
}

// UpdateStatus moves an order through the status state machine.
func (r *InMemoryRepository) UpdateStatus(id, status string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	if !CanTransition(order.Status, status) {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	order.Status = status
	order.UpdatedAt = &now

	copied := *order
	return &copied, nil
}
