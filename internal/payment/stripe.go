// Package payment provides Stripe integration for hosted checkout.
package payment

import (
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// CheckoutParams are the inputs for creating a hosted checkout session.
type CheckoutParams struct {
	TxRef       string // Our external transaction reference, carried on the session
	Amount      int64  // Minor currency units
	Currency    string
	Description string
	CustomerRef string // Stable subject id of the paying user
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the gateway's answer: where to redirect the buyer and
// the gateway-side reference to store on the intent.
type CheckoutSession struct {
	ID  string
	URL string
}

// SessionStatus is the gateway's view of a session when polled.
type SessionStatus struct {
	ID    string
	TxRef string // Echoed client reference
	Paid  bool
	Open  bool // Session still awaiting payment
}

// Client is an interface for gateway operations to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(params *CheckoutParams) (*CheckoutSession, error)
	GetSessionStatus(sessionID string) (*SessionStatus, error)
}

// StripeClient implements the Client interface using the real Stripe SDK.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// CreateCheckoutSession creates a Stripe Checkout Session for a single
// aggregate charge. The transaction reference rides on ClientReferenceID so
// webhooks and polls can be correlated back to the intent.
func (c *StripeClient) CreateCheckoutSession(params *CheckoutParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(params.TxRef),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata: map[string]string{
			"tx_ref":  params.TxRef,
			"user_id": params.CustomerRef,
		},
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetSessionStatus retrieves the payment status of a checkout session. Used
// by the client-poll confirmation path so status is always asked of the
// gateway rather than trusted from the browser.
func (c *StripeClient) GetSessionStatus(sessionID string) (*SessionStatus, error) {
	sess, err := session.Get(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	return &SessionStatus{
		ID:    sess.ID,
		TxRef: sess.ClientReferenceID,
		Paid:  sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Open:  sess.Status == stripe.CheckoutSessionStatusOpen,
	}, nil
}
