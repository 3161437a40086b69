// Package order provides models and repository for seller orders created
// from successful checkouts.
package order

import "time"

// Order status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Order represents one seller's share of a successful checkout. A checkout
// spanning N sellers materializes into N independent orders.
type Order struct {
	ID          string     `json:"id"`
	BuyerID     string     `json:"buyer_id"`
	SellerID    string     `json:"seller_id"`
	Title       string     `json:"title"`
	Amount      int64      `json:"amount"`   // Total in minor currency units
	Currency    string     `json:"currency"` // ISO 4217 code
	Status      string     `json:"status"`   // pending, processing, completed, cancelled
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// LineItem is an immutable price/quantity snapshot attached to an order.
// Line items are written once at fulfillment and never mutated.
type LineItem struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	UnitPrice int64      `json:"unit_price"` // Minor currency units at fulfillment time
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// validTransitions describes the order status state machine.
var validTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
