package payment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sokoni-collective/sokoni/internal/order"
	"github.com/sokoni-collective/sokoni/internal/subscription"
)

// fulfill converts a just-confirmed payment into durable business records.
// It runs at most once per intent: UpdateStatus only calls it when its
// guarded pending -> success transition wins, and at most one confirmation
// can win that compare-and-set.
//
// Everything in this path is best-effort. The payment is already recorded
// as paid; a partial fulfillment failure is logged and counted for manual
// remediation, never propagated.
func (s *Service) fulfill(intent *PaymentIntent) {
	switch intent.Kind {
	case KindOrder:
		s.fulfillOrder(intent)
	case KindSubscription:
		s.fulfillSubscription(intent)
	default:
		slog.Error("cannot fulfill payment of unknown kind",
			"payment_id", intent.ID, "kind", intent.Kind)
		s.metrics.FulfillmentError()
	}
}

// fulfillOrder groups the cart snapshot by seller, creates one processing
// order per seller with its line items, decrements live stock floored at
// zero, and clears the buyer's entire live cart.
func (s *Service) fulfillOrder(intent *PaymentIntent) {
	meta := intent.Metadata.Order
	if meta == nil || len(meta.Lines) == 0 {
		slog.Error("order payment has no cart snapshot, skipping fulfillment",
			"payment_id", intent.ID, "tx_ref", intent.TxRef)
		s.metrics.FulfillmentError()
		return
	}

	// Group lines by seller, preserving first-appearance order.
	var sellers []string
	groups := make(map[string][]CartLine)
	for _, line := range meta.Lines {
		if _, seen := groups[line.SellerID]; !seen {
			sellers = append(sellers, line.SellerID)
		}
		groups[line.SellerID] = append(groups[line.SellerID], line)
	}

	var firstOrderID string

	for _, sellerID := range sellers {
		lines := groups[sellerID]

		var total int64
		for _, line := range lines {
			total += int64(line.Quantity) * line.UnitPrice
		}

		ord := &order.Order{
			BuyerID:  intent.UserID,
			SellerID: sellerID,
			Title:    fmt.Sprintf("Marketplace order (%d items)", len(lines)),
			Amount:   total,
			Currency: intent.Currency,
			// Pre-paid orders skip pending and start in processing.
			Status:      order.StatusProcessing,
			Description: fmt.Sprintf("Paid checkout, payment reference %s", intent.TxRef),
		}

		if err := s.orders.Insert(ord); err != nil {
			slog.Error("failed to create order during fulfillment",
				"payment_id", intent.ID, "seller_id", sellerID, "error", err)
			s.metrics.FulfillmentError()
			continue
		}
		if firstOrderID == "" {
			firstOrderID = ord.ID
		}

		for _, line := range lines {
			item := &order.LineItem{
				OrderID:   ord.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			}
			if err := s.orders.InsertLineItem(item); err != nil {
				slog.Error("failed to create order line item",
					"order_id", ord.ID, "product_id", line.ProductID, "error", err)
				s.metrics.FulfillmentError()
			}

			if _, err := s.products.DecrementStock(line.ProductID, line.Quantity); err != nil {
				slog.Error("failed to decrement product stock",
					"product_id", line.ProductID, "quantity", line.Quantity, "error", err)
				s.metrics.FulfillmentError()
			}
		}

		slog.Info("order materialized",
			"payment_id", intent.ID,
			"order_id", ord.ID,
			"seller_id", sellerID,
			"amount", total)
	}

	// Full clear of the live cart, not just the snapshotted lines.
	if _, err := s.carts.ClearUser(intent.UserID); err != nil {
		slog.Error("failed to clear cart after fulfillment",
			"payment_id", intent.ID, "user_id", intent.UserID, "error", err)
		s.metrics.FulfillmentError()
	}

	if firstOrderID != "" {
		intent.OrderID = &firstOrderID
		if err := s.payments.Update(intent); err != nil {
			slog.Error("failed to link order to payment",
				"payment_id", intent.ID, "order_id", firstOrderID, "error", err)
			s.metrics.FulfillmentError()
		}
	}
}

// fulfillSubscription activates or renews the business's subscription. An
// existing row is patched rather than duplicated; at most one live
// subscription exists per business. No trial is granted on paid activation.
func (s *Service) fulfillSubscription(intent *PaymentIntent) {
	meta := intent.Metadata.Subscription
	if meta == nil {
		slog.Error("subscription payment has no plan metadata, skipping fulfillment",
			"payment_id", intent.ID, "tx_ref", intent.TxRef)
		s.metrics.FulfillmentError()
		return
	}

	now := time.Now()
	periodEnd := now.Add(subscription.PeriodFor(meta.BillingCycle))

	sub, err := s.subs.GetByBusiness(meta.BusinessID)
	switch {
	case err == subscription.ErrSubscriptionNotFound:
		sub = &subscription.Subscription{
			BusinessID:         meta.BusinessID,
			PlanID:             meta.PlanID,
			Status:             subscription.StatusActive,
			BillingCycle:       meta.BillingCycle,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   periodEnd,
			LastPaymentID:      &intent.ID,
		}
		if err := s.subs.Insert(sub); err != nil {
			slog.Error("failed to create subscription during fulfillment",
				"payment_id", intent.ID, "business_id", meta.BusinessID, "error", err)
			s.metrics.FulfillmentError()
			return
		}

	case err != nil:
		slog.Error("failed to look up subscription during fulfillment",
			"payment_id", intent.ID, "business_id", meta.BusinessID, "error", err)
		s.metrics.FulfillmentError()
		return

	default:
		sub.Status = subscription.StatusActive
		sub.PlanID = meta.PlanID
		sub.BillingCycle = meta.BillingCycle
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = periodEnd
		sub.CancelAtPeriodEnd = false
		sub.TrialEndsAt = nil
		sub.LastPaymentID = &intent.ID
		if err := s.subs.Update(sub); err != nil {
			slog.Error("failed to renew subscription during fulfillment",
				"payment_id", intent.ID, "subscription_id", sub.ID, "error", err)
			s.metrics.FulfillmentError()
			return
		}
	}

	intent.SubscriptionID = &sub.ID
	if err := s.payments.Update(intent); err != nil {
		slog.Error("failed to link subscription to payment",
			"payment_id", intent.ID, "subscription_id", sub.ID, "error", err)
		s.metrics.FulfillmentError()
	}

	slog.Info("subscription activated",
		"payment_id", intent.ID,
		"subscription_id", sub.ID,
		"business_id", meta.BusinessID,
		"plan_id", meta.PlanID,
		"period_end", periodEnd)
}
