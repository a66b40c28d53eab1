package domain

import "time"

// PaymentMethod represents the payment method for an order.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

// LatLng is a WGS-84 coordinate pair.
type LatLng struct {
	Latitude  float64
	Longitude float64
}

// Place is an address with its coordinates.
type Place struct {
	Address   string
	Latitude  float64
	Longitude float64
}

// Pricing holds the monetary figures quoted for an order.
type Pricing struct {
	Total float64
}

// Order is the delivery job tracked end-to-end by the lifecycle service.
//
// Ownership: the customer owns the document until acceptance; afterwards the
// driver writes status/location/photos and the customer writes cancellation.
type Order struct {
	ID         string
	Status     OrderStatus
	CustomerID string
	DriverID   string // assigned driver, empty until accepted

	Pickup  Place
	Dropoff Place
	Pricing Pricing

	PaymentMethod PaymentMethod

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  time.Time
	CompletedAt time.Time
	CancelledAt time.Time

	// ExpiresAt is meaningful only while Status is pending.
	ExpiresAt time.Time

	// Advisory claim: a hint that a driver is looking at the offer.
	// Not a lock; acceptance is guarded by a store-side precondition.
	ViewingDriverID string
	ViewedAt        time.Time

	ResetCount    int
	ExtendedTimes int

	// DriverLocation is the latest position reported by the assigned driver.
	DriverLocation *LatLng

	// Photos holds photo-evidence URLs keyed by stage ("pickup", "dropoff").
	Photos map[string][]string

	// Cancellation outcome, authoritative values from the settlement service.
	CancelReason       string
	CancellationFee    float64
	RefundAmount       float64
	DriverCompensation float64
	RefundID           string
}

// StageTimestampField returns the document field recording when the given
// stage was reached, or "" for stages that carry no dedicated timestamp.
func StageTimestampField(status OrderStatus) string {
	switch status {
	case OrderStatusAccepted:
		return "acceptedAt"
	case OrderStatusInProgress:
		return "startedAt"
	case OrderStatusArrivedAtPickup:
		return "arrivedAtPickupAt"
	case OrderStatusPickedUp:
		return "pickedUpAt"
	case OrderStatusEnRouteToDropoff:
		return "enRouteAt"
	case OrderStatusArrivedAtDropoff:
		return "arrivedAtDropoffAt"
	case OrderStatusCompleted:
		return "completedAt"
	case OrderStatusCancelled:
		return "cancelledAt"
	default:
		return ""
	}
}

// PhotoStage returns the photo-evidence key a transition into the given
// status must document, or "" when no photo is required.
func PhotoStage(status OrderStatus) string {
	switch status {
	case OrderStatusPickedUp:
		return "pickup"
	case OrderStatusArrivedAtDropoff:
		return "dropoff"
	default:
		return ""
	}
}
