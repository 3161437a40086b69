package subscription

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

const subscriptionColumns = `id, business_id, plan_id, status, billing_cycle,
	current_period_start, current_period_end, cancel_at_period_end,
	trial_ends_at, last_payment_id, created_at, updated_at`

// Insert adds a new subscription. The unique constraint on business_id
// enforces at most one live subscription per business.
func (r *PostgresRepository) Insert(sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (business_id, plan_id, status, billing_cycle,
			current_period_start, current_period_end, cancel_at_period_end,
			trial_ends_at, last_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		sub.BusinessID,
		sub.PlanID,
		sub.Status,
		sub.BillingCycle,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.TrialEndsAt,
		sub.LastPaymentID,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// GetByBusiness retrieves the subscription for a business.
func (r *PostgresRepository) GetByBusiness(businessID string) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE business_id = $1`

	sub := &Subscription{}
	err := r.db.QueryRow(query, businessID).Scan(
		&sub.ID,
		&sub.BusinessID,
		&sub.PlanID,
		&sub.Status,
		&sub.BillingCycle,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.TrialEndsAt,
		&sub.LastPaymentID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// Update patches an existing subscription.
func (r *PostgresRepository) Update(sub *Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, billing_cycle = $4,
			current_period_start = $5, current_period_end = $6,
			cancel_at_period_end = $7, trial_ends_at = $8,
			last_payment_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		query,
		sub.ID,
		sub.PlanID,
		sub.Status,
		sub.BillingCycle,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.TrialEndsAt,
		sub.LastPaymentID,
	).Scan(&sub.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrSubscriptionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}
