package repository

import (
	"context"

	"courier/internal/domain"
)

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// Create persists a new order as a full document.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetAll retrieves every order. The store has no native query this
	// layer uses; callers filter client-side.
	GetAll(ctx context.Context) ([]*domain.Order, error)

	// Patch writes only the named field paths, leaving all others
	// untouched. Paths use dot notation for nested fields.
	Patch(ctx context.Context, id string, fields map[string]any) error

	// PatchIf is Patch guarded by a store-enforced precondition on one
	// field's current value. Returns ErrConflict when the precondition no
	// longer holds.
	PatchIf(ctx context.Context, id string, fields map[string]any, field, equals string) error
}
