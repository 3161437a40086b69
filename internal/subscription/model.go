// Package subscription provides models and repository for business plan
// subscriptions.
package subscription

import "time"

// Subscription status constants.
const (
	StatusActive    = "active"
	StatusTrialing  = "trialing"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

// Billing cycle constants.
const (
	CycleMonthly = "monthly"
	CycleAnnual  = "annual"
)

// Billing period lengths granted on paid activation.
const (
	MonthlyPeriod = 30 * 24 * time.Hour
	AnnualPeriod  = 365 * 24 * time.Hour
)

// Subscription represents a business's plan subscription. At most one live
// subscription exists per business; paid renewals patch the existing row
// rather than inserting a second one.
type Subscription struct {
	ID                 string     `json:"id"`
	BusinessID         string     `json:"business_id"`
	PlanID             string     `json:"plan_id"`
	Status             string     `json:"status"`        // active, trialing, past_due, cancelled
	BillingCycle       string     `json:"billing_cycle"` // monthly, annual
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	LastPaymentID      *string    `json:"last_payment_id,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// PeriodFor returns the billing period length for a cycle. Unknown cycles
// fall back to monthly.
func PeriodFor(cycle string) time.Duration {
	if cycle == CycleAnnual {
		return AnnualPeriod
	}
	return MonthlyPeriod
}
