package order

import (
	"database/sql"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id, buyer_id, seller_id, title, amount, currency, status, description, created_at, updated_at`

// Insert adds a new order.
func (r *PostgresRepository) Insert(order *Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, title, amount, currency, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	status := order.Status
	if status == "" {
		status = StatusPending
	}

	err := r.db.QueryRow(
		query,
		order.BuyerID,
		order.SellerID,
		order.Title,
		order.Amount,
		order.Currency,
		status,
		order.Description,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.Status = status
	return nil
}

// InsertLineItem adds an immutable line item to an order.
func (r *PostgresRepository) InsertLineItem(item *LineItem) error {
	query := `
		INSERT INTO order_line_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		item.OrderID,
		item.ProductID,
		item.Quantity,
		item.UnitPrice,
	).Scan(&item.ID, &item.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert line item: %w", err)
	}

	return nil
}

func scanOrder(row interface{ Scan(dest ...any) error }, order *Order) error {
	return row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.SellerID,
		&order.Title,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.Description,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}

// GetByID retrieves an order by ID.
func (r *PostgresRepository) GetByID(id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order := &Order{}
	err := scanOrder(r.db.QueryRow(query, id), order)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// ListLineItems retrieves the line items for an order.
func (r *PostgresRepository) ListLineItems(orderID string) ([]*LineItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price, created_at
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var result []*LineItem
	for rows.Next() {
		item := &LineItem{}
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate line items: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) list(query, id string) ([]*Order, error) {
	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		order := &Order{}
		if err := scanOrder(rows, order); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		result = append(result, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return result, nil
}

// ListByBuyer retrieves all orders placed by a buyer, newest first.
func (r *PostgresRepository) ListByBuyer(buyerID string) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`
	return r.list(query, buyerID)
}

// ListBySeller retrieves all orders received by a seller, newest first.
func (r *PostgresRepository) ListBySeller(sellerID string) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE seller_id = $1 ORDER BY created_at DESC`
	return r.list(query, sellerID)
}

// UpdateStatus moves an order through the status state machine.
func (r *PostgresRepository) UpdateStatus(id, status string) (*Order, error) {
	current, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + orderColumns

	order := &Order{}
	err = scanOrder(r.db.QueryRow(query, id, status), order)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	return order, nil
}
