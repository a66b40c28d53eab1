// Package policy holds pure business rules evaluated client-side before any
// remote call is made.
package policy

import "courier/internal/domain"

// CancellationResult is the outcome of a cancellation eligibility check.
// The monetary fields are placeholders: the settlement service returns the
// authoritative fee, refund, and compensation after a real cancellation.
// This result decides "may I try", not "what will I get".
type CancellationResult struct {
	CanCancel          bool
	Fee                float64
	RefundAmount       float64
	DriverCompensation float64
	Reason             string
}

// EvaluateCancellation computes cancellation eligibility from order state.
// Once any stage past accepted/inProgress is reached, cancellation is
// permanently disallowed for that order.
func EvaluateCancellation(order *domain.Order) CancellationResult {
	switch order.Status {
	case domain.OrderStatusPending:
		return CancellationResult{
			CanCancel:    true,
			RefundAmount: order.Pricing.Total,
			Reason:       "order not yet accepted, free cancellation",
		}

	case domain.OrderStatusAccepted, domain.OrderStatusInProgress:
		return CancellationResult{
			CanCancel:    true,
			RefundAmount: order.Pricing.Total,
			Reason:       "driver has not picked up yet, free cancellation",
		}

	case domain.OrderStatusArrivedAtPickup,
		domain.OrderStatusPickedUp,
		domain.OrderStatusEnRouteToDropoff,
		domain.OrderStatusArrivedAtDropoff:
		return CancellationResult{
			Reason: "order can no longer be cancelled at this stage",
		}

	case domain.OrderStatusCompleted:
		return CancellationResult{Reason: "order already completed"}

	case domain.OrderStatusCancelled:
		return CancellationResult{Reason: "order already cancelled"}

	default:
		return CancellationResult{Reason: "unknown order status"}
	}
}
