package catalog

import (
	"database/sql"
	"fmt"
)

// PostgresProductRepository implements ProductRepository using PostgreSQL.
type PostgresProductRepository struct {
	db *sql.DB
}

// NewPostgresProductRepository creates a new PostgresProductRepository.
func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

// Insert adds a new product.
func (r *PostgresProductRepository) Insert(product *Product) error {
	query := `
		INSERT INTO products (seller_id, name, description, price, currency, stock, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	status := product.Status
	if status == "" {
		status = StatusActive
	}

	err := r.db.QueryRow(
		query,
		product.SellerID,
		product.Name,
		product.Description,
		product.Price,
		product.Currency,
		product.Stock,
		status,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	product.Status = status
	return nil
}

// GetByID retrieves a product by ID.
func (r *PostgresProductRepository) GetByID(id string) (*Product, error) {
	query := `
		SELECT id, seller_id, name, description, price, currency, stock, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &Product{}
	err := r.db.QueryRow(query, id).Scan(
		&product.ID,
		&product.SellerID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Currency,
		&product.Stock,
		&product.Status,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

// ListBySeller retrieves all products owned by a seller.
func (r *PostgresProductRepository) ListBySeller(sellerID string) ([]*Product, error) {
	query := `
		SELECT id, seller_id, name, description, price, currency, stock, status, created_at, updated_at
		FROM products
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var result []*Product
	for rows.Next() {
		product := &Product{}
		if err := rows.Scan(
			&product.ID,
			&product.SellerID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.Currency,
			&product.Stock,
			&product.Status,
			&product.CreatedAt,
			&product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result = append(result, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return result, nil
}

// Update updates an existing product.
func (r *PostgresProductRepository) Update(product *Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, currency = $5, stock = $6, status = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Currency,
		product.Stock,
		product.Status,
	).Scan(&product.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	return nil
}

// DecrementStock reduces a product's stock by qty, flooring the result at zero.
// The floor is enforced in SQL so concurrent decrements cannot drive stock negative.
func (r *PostgresProductRepository) DecrementStock(id string, qty int) (int, error) {
	query := `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`

	var stock int
	err := r.db.QueryRow(query, id, qty).Scan(&stock)
	if err == sql.ErrNoRows {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}

	return stock, nil
}
