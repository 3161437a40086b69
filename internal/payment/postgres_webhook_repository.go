package payment

import (
	"database/sql"
	"fmt"
	"time"
)

// PostgresWebhookRepository implements WebhookRepository using PostgreSQL.
// The tx_ref column carries a unique constraint; the insert uses
// ON CONFLICT DO NOTHING so two concurrent deliveries of the same callback
// race safely and exactly one of them observes alreadyProcessed=false.
type PostgresWebhookRepository struct {
	db *sql.DB
}

// NewPostgresWebhookRepository creates a new PostgresWebhookRepository.
func NewPostgresWebhookRepository(db *sql.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

// HasProcessed checks if a callback for txRef has already been processed.
func (r *PostgresWebhookRepository) HasProcessed(txRef string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE tx_ref = $1)`, txRef,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}

// MarkProcessed records a callback as processed.
func (r *PostgresWebhookRepository) MarkProcessed(txRef, eventType, signature string) (bool, string, error) {
	var id string
	err := r.db.QueryRow(`
		INSERT INTO webhook_events (tx_ref, event_type, signature)
		VALUES ($1, $2, $3)
		ON CONFLICT (tx_ref) DO NOTHING
		RETURNING id
	`, txRef, eventType, signature).Scan(&id)

	if err == sql.ErrNoRows {
		// Conflict: another delivery won the insert. Fetch its id.
		err = r.db.QueryRow(
			`SELECT id FROM webhook_events WHERE tx_ref = $1`, txRef,
		).Scan(&id)
		if err != nil {
			return true, "", fmt.Errorf("failed to load existing webhook event: %w", err)
		}
		return true, id, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to record webhook event: %w", err)
	}

	return false, id, nil
}

// DeleteOlderThan removes events processed before now-retention.
func (r *PostgresWebhookRepository) DeleteOlderThan(retention time.Duration) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM webhook_events WHERE processed_at < $1`,
		time.Now().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete webhook events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	return deleted, nil
}
