// Package cart provides models and repository for per-user shopping carts.
package cart

import "time"

// Item represents one line in a user's live cart. The cart is mutable right
// up until checkout confirmation; pricing on an Item is informational only.
// The payment pipeline snapshots cart contents at intent creation and never
// reads the live cart again until it clears it.
type Item struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
