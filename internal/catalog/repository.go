// Package catalog provides models and repository for the product catalog.
package catalog

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrProductNotFound is returned when a product is not found.
var ErrProductNotFound = errors.New("product not found")

// ProductRepository defines methods for product persistence.
type ProductRepository interface {
	Insert(product *Product) error
	GetByID(id string) (*Product, error)
	ListBySeller(sellerID string) ([]*Product, error)
	Update(product *Product) error

	// DecrementStock reduces a product's stock by qty, flooring the result
	// at zero. Stock never goes negative even when confirmations race for
	// the last units. Returns the resulting stock level.
	DecrementStock(id string, qty int) (int, error)
}

// InMemoryProductRepository implements ProductRepository with in-memory storage.
type InMemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*Product
}

// NewInMemoryProductRepository creates a new in-memory product repository.
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products: make(map[string]*Product),
	}
}

// Insert adds a new product.
func (r *InMemoryProductRepository) Insert(product *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.Status == "" {
		product.Status = StatusActive
	}

	now := time.Now()
	if product.CreatedAt == nil {
		product.CreatedAt = &now
	}
	if product.UpdatedAt == nil {
		product.UpdatedAt = &now
	}

	// Deep copy to prevent external mutation
	copied := *product
	r.products[product.ID] = &copied

	return nil
}

// GetByID retrieves a product by ID.
func (r *InMemoryProductRepository) GetByID(id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}

	copied := *product
	return &copied, nil
}

// ListBySeller retrieves all products owned by a seller.
func (r *InMemoryProductRepository) ListBySeller(sellerID string) ([]*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Product
	for _, product := range r.products {
		if product.SellerID == sellerID {
			copied := *product
			result = append(result, &copied)
		}
	}

	return result, nil
}

// Update updates an existing product.
func (r *InMemoryProductRepository) Update(product *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[product.ID]; !ok {
		return ErrProductNotFound
	}

	now := time.Now()
	product.UpdatedAt = &now

	copied := *product
	r.products[product.ID] = &copied

	return nil
}

// DecrementStock reduces a product's stock by qty, flooring the result at zero.
func (r *InMemoryProductRepository) DecrementStock(id string, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return 0, ErrProductNotFound
	}

	product.Stock -= qty
	if product.Stock < 0 {
		product.Stock = 0
	}

	now := time.Now()
	product.UpdatedAt = &now

	return product.Stock, nil
}
