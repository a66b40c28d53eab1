package domain

// OrderStatus represents the current stage of an order.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAccepted         OrderStatus = "accepted"
	OrderStatusInProgress       OrderStatus = "inProgress"
	OrderStatusArrivedAtPickup  OrderStatus = "arrivedAtPickup"
	OrderStatusPickedUp         OrderStatus = "pickedUp"
	OrderStatusEnRouteToDropoff OrderStatus = "enRouteToDropoff"
	OrderStatusArrivedAtDropoff OrderStatus = "arrivedAtDropoff"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// orderTransitions is the single source of truth for valid status moves.
// Status only moves forward along this graph or into cancelled; every caller
// consults this table instead of re-deriving transitions ad hoc.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:         {OrderStatusInProgress, OrderStatusArrivedAtPickup, OrderStatusCancelled},
	OrderStatusInProgress:       {OrderStatusArrivedAtPickup, OrderStatusCancelled},
	OrderStatusArrivedAtPickup:  {OrderStatusPickedUp},
	OrderStatusPickedUp:         {OrderStatusEnRouteToDropoff},
	OrderStatusEnRouteToDropoff: {OrderStatusArrivedAtDropoff},
	OrderStatusArrivedAtDropoff: {OrderStatusCompleted},
	OrderStatusCompleted:        {},
	OrderStatusCancelled:        {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsValid reports whether the status is one of the defined stages.
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// DriverStages lists the statuses a driver moves an order through after
// acceptance, in order.
func DriverStages() []OrderStatus {
	return []OrderStatus{
		OrderStatusArrivedAtPickup,
		OrderStatusPickedUp,
		OrderStatusEnRouteToDropoff,
		OrderStatusArrivedAtDropoff,
		OrderStatusCompleted,
	}
}
