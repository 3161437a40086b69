// Package catalog provides models and repository for the product catalog.
package catalog

import "time"

// Product status constants.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// Product represents a seller's listing in the marketplace catalog.
type Product struct {
	ID          string     `json:"id"`
	SellerID    string     `json:"seller_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Price       int64      `json:"price"`    // Unit price in minor currency units
	Currency    string     `json:"currency"` // ISO 4217 code
	Stock       int        `json:"stock"`
	Status      string     `json:"status"` // active, inactive, archived
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// IsActive reports whether the product can currently be purchased.
func (p *Product) IsActive() bool {
	return p.Status == StatusActive
}
