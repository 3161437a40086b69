package payment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL. Metadata is
// stored as JSONB. The idempotency_key column deliberately has no unique
// constraint: duplicate rows must be able to coexist briefly so the
// post-insert tiebreak can resolve them.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `
	id, tx_ref, user_id, amount, currency, status, kind, metadata,
	COALESCE(idempotency_key, ''), gateway_ref, order_id, subscription_id,
	refunded_amount, refund_reason, refund_reference, refunded_by, refunded_at,
	created_at, updated_at
`

// Insert adds a new payment intent.
func (r *PostgresRepository) Insert(intent *PaymentIntent) error {
	metadata, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO payment_intents (tx_ref, user_id, amount, currency, status, kind, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, created_at, updated_at
	`

	status := intent.Status
	if status == "" {
		status = StatusPending
	}

	err = r.db.QueryRow(
		query,
		intent.TxRef,
		intent.UserID,
		intent.Amount,
		intent.Currency,
		status,
		intent.Kind,
		metadata,
		intent.IdempotencyKey,
	).Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}

	intent.Status = status
	return nil
}

// GetByID retrieves a payment intent by ID.
func (r *PostgresRepository) GetByID(id string) (*PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE id = $1`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByTxRef retrieves a payment intent by external transaction reference.
func (r *PostgresRepository) GetByTxRef(txRef string) (*PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE tx_ref = $1`
	return r.scanOne(r.db.QueryRow(query, txRef))
}

// Update updates an existing payment intent.
func (r *PostgresRepository) Update(intent *PaymentIntent) error {
	metadata, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE payment_intents
		SET status = $2, metadata = $3, gateway_ref = $4, order_id = $5,
		    subscription_id = $6, refunded_amount = $7, refund_reason = $8,
		    refund_reference = $9, refunded_by = $10, refunded_at = $11,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRow(
		query,
		intent.ID,
		intent.Status,
		metadata,
		intent.GatewayRef,
		intent.OrderID,
		intent.SubscriptionID,
		intent.RefundedAmount,
		intent.RefundReason,
		intent.RefundReference,
		intent.RefundedBy,
		intent.RefundedAt,
	).Scan(&intent.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update payment intent: %w", err)
	}

	return nil
}

// UpdateStatusFromPending atomically transitions an intent out of pending.
// The status predicate in the WHERE clause is the compare-and-set: of any
// number of racing confirmations, exactly one finds the row still pending.
func (r *PostgresRepository) UpdateStatusFromPending(id, newStatus string, gatewayRef *string) (*PaymentIntent, bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, gateway_ref = COALESCE($3, gateway_ref), updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING ` + paymentColumns

	intent, err := r.scanOne(r.db.QueryRow(query, id, newStatus, gatewayRef, StatusPending))
	if err == ErrPaymentNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to transition payment intent: %w", err)
	}

	return intent, true, nil
}

// Delete removes a payment intent. Only the idempotency tiebreak uses this.
func (r *PostgresRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM payment_intents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment intent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

// ListByUserAndKey retrieves every intent for a (user, idempotency key)
// pair, sorted by id ascending so all racing callers see the same winner.
func (r *PostgresRepository) ListByUserAndKey(userID, idempotencyKey string) ([]*PaymentIntent, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_intents
		WHERE user_id = $1 AND idempotency_key = $2
		ORDER BY id ASC
	`
	return r.scanMany(query, userID, idempotencyKey)
}

// ListPendingOlderThan retrieves pending intents created before cutoff.
func (r *PostgresRepository) ListPendingOlderThan(cutoff time.Time) ([]*PaymentIntent, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_intents
		WHERE status = $1 AND created_at < $2
	`
	return r.scanMany(query, StatusPending, cutoff)
}

func (r *PostgresRepository) scanMany(query string, args ...any) ([]*PaymentIntent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment intents: %w", err)
	}
	defer rows.Close()

	var result []*PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment intents: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row rowScanner) (*PaymentIntent, error) {
	intent, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return intent, err
}

func scanIntent(row rowScanner) (*PaymentIntent, error) {
	intent := &PaymentIntent{}
	var metadata []byte

	err := row.Scan(
		&intent.ID,
		&intent.TxRef,
		&intent.UserID,
		&intent.Amount,
		&intent.Currency,
		&intent.Status,
		&intent.Kind,
		&metadata,
		&intent.IdempotencyKey,
		&intent.GatewayRef,
		&intent.OrderID,
		&intent.SubscriptionID,
		&intent.RefundedAmount,
		&intent.RefundReason,
		&intent.RefundReference,
		&intent.RefundedBy,
		&intent.RefundedAt,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment intent: %w", err)
	}

	if err := json.Unmarshal(metadata, &intent.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return intent, nil
}
