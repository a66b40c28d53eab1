package service

import "errors"

var (
	// ErrInvalidOrderID is returned when an order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidCustomerID is returned when a customer ID is empty.
	ErrInvalidCustomerID = errors.New("invalid customer id")

	// ErrInvalidDriverID is returned when a driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidTotal is returned when an order total is not positive.
	ErrInvalidTotal = errors.New("invalid order total")

	// ErrOrderNotPending is returned when an offer-phase operation targets
	// an order that already left the pending state.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrOrderAlreadyClaimed is returned when acceptance loses the race:
	// the store's precondition saw the order leave pending first.
	ErrOrderAlreadyClaimed = errors.New("order was already accepted by another driver")

	// ErrInvalidTransition is returned when a status move is not on the
	// transition graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotAssignedDriver is returned when a driver operates on an order
	// assigned to someone else.
	ErrNotAssignedDriver = errors.New("driver is not assigned to this order")

	// ErrPhotoRequired is returned when a pickup or dropoff confirmation
	// carries no photo evidence.
	ErrPhotoRequired = errors.New("photo evidence required for this stage")

	// ErrCancellationNotAllowed is returned when the cancellation policy
	// rejects the request; the wrapped reason is user-readable.
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")

	// ErrAlreadyOnline is returned when going online with an open session.
	ErrAlreadyOnline = errors.New("driver already has an online session")

	// ErrNotOnline is returned when an operation needs an online session.
	ErrNotOnline = errors.New("driver is not online")

	// ErrEmptyMessage is returned when sending a message with no content.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrNotParticipant is returned when a user touches a conversation they
	// are not part of.
	ErrNotParticipant = errors.New("user is not a participant of this conversation")
)
