package payment

import (
	"fmt"

	"github.com/sokoni-collective/sokoni/internal/cart"
	"github.com/sokoni-collective/sokoni/internal/catalog"
)

// Snapshotter captures a point-in-time copy of a user's cart for order-kind
// payment intents. It validates against live product state but mutates
// nothing: stock decrement and cart clearing are deferred to fulfillment so
// an abandoned or failed payment leaves inventory and cart untouched.
type Snapshotter struct {
	carts    cart.Repository
	products catalog.ProductRepository
}

// NewSnapshotter creates a new Snapshotter.
func NewSnapshotter(carts cart.Repository, products catalog.ProductRepository) *Snapshotter {
	return &Snapshotter{
		carts:    carts,
		products: products,
	}
}

// Build reads the user's live cart and produces an immutable snapshot plus
// its total. For each line the current product is re-fetched: unit price is
// the product's current price, not the cart-time price.
//
// Returns ErrEmptyCart, ErrProductUnavailable, or ErrInsufficientStock as
// user-visible validation failures.
func (s *Snapshotter) Build(userID string) ([]CartLine, int64, error) {
	items, err := s.carts.ListByUser(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(items) == 0 {
		return nil, 0, ErrEmptyCart
	}

	lines := make([]CartLine, 0, len(items))
	var total int64

	for _, item := range items {
		product, err := s.products.GetByID(item.ProductID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
		}
		if !product.IsActive() {
			return nil, 0, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
		}
		if item.Quantity > product.Stock {
			return nil, 0, fmt.Errorf("%w for %s: requested %d, available %d",
				ErrInsufficientStock, product.Name, item.Quantity, product.Stock)
		}

		lines = append(lines, CartLine{
			ProductID:   product.ID,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			SellerID:    product.SellerID,
			ProductName: product.Name,
		})
		total += int64(item.Quantity) * product.Price
	}

	return lines, total, nil
}
