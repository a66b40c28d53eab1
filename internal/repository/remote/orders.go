package remote

import (
	"context"
	"errors"

	"courier/internal/docstore"
	"courier/internal/domain"
	"courier/internal/repository"
)

const ordersCollection = "orders"

// OrderRepository persists orders in the remote document store.
type OrderRepository struct {
	client *docstore.Client
}

// NewOrderRepository creates an order repository over the given store client.
func NewOrderRepository(client *docstore.Client) *OrderRepository {
	return &OrderRepository{client: client}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.client.Set(ctx, ordersCollection, order.ID, orderToFields(order))
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	fields, err := r.client.Get(ctx, ordersCollection, id)
	if err != nil {
		return nil, translate(err)
	}
	return orderFromFields(id, fields), nil
}

func (r *OrderRepository) GetAll(ctx context.Context) ([]*domain.Order, error) {
	docs, err := r.client.List(ctx, ordersCollection)
	if err != nil {
		return nil, translate(err)
	}
	orders := make([]*domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, orderFromFields(doc.ID, doc.Fields))
	}
	return orders, nil
}

func (r *OrderRepository) Patch(ctx context.Context, id string, fields map[string]any) error {
	return translate(r.client.Patch(ctx, ordersCollection, id, fields))
}

func (r *OrderRepository) PatchIf(ctx context.Context, id string, fields map[string]any, field, equals string) error {
	err := r.client.PatchIf(ctx, ordersCollection, id, fields, docstore.Precondition{
		Field:  field,
		Equals: equals,
	})
	return translate(err)
}

// translate maps store-transport errors onto repository sentinels so callers
// never import the transport package.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return repository.ErrNotFound
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return repository.ErrConflict
	default:
		return err
	}
}

func orderToFields(o *domain.Order) map[string]any {
	fields := map[string]any{
		"status":     string(o.Status),
		"customerId": o.CustomerID,
		"pickup": map[string]any{
			"address":   o.Pickup.Address,
			"latitude":  o.Pickup.Latitude,
			"longitude": o.Pickup.Longitude,
		},
		"dropoff": map[string]any{
			"address":   o.Dropoff.Address,
			"latitude":  o.Dropoff.Latitude,
			"longitude": o.Dropoff.Longitude,
		},
		"pricing": map[string]any{
			"total": o.Pricing.Total,
		},
		"paymentMethod": string(o.PaymentMethod),
		"createdAt":     o.CreatedAt,
		"updatedAt":     o.UpdatedAt,
		"expiresAt":     o.ExpiresAt,
		"resetCount":    o.ResetCount,
		"extendedTimes": o.ExtendedTimes,
	}

	if o.DriverID != "" {
		fields["driverId"] = o.DriverID
	}
	if o.ViewingDriverID == "" {
		fields["viewingDriverId"] = nil
	} else {
		fields["viewingDriverId"] = o.ViewingDriverID
		fields["viewedAt"] = o.ViewedAt
	}
	if o.DriverLocation != nil {
		fields["driverLocation"] = map[string]any{
			"latitude":  o.DriverLocation.Latitude,
			"longitude": o.DriverLocation.Longitude,
		}
	}
	if photos := o.Photos["pickup"]; len(photos) > 0 {
		fields["pickupPhotos"] = photos
	}
	if photos := o.Photos["dropoff"]; len(photos) > 0 {
		fields["dropoffPhotos"] = photos
	}
	return fields
}

func orderFromFields(id string, fields map[string]any) *domain.Order {
	o := &domain.Order{
		ID:         id,
		Status:     domain.OrderStatus(str(fields, "status")),
		CustomerID: str(fields, "customerId"),
		DriverID:   str(fields, "driverId"),

		PaymentMethod: domain.PaymentMethod(str(fields, "paymentMethod")),

		CreatedAt:   ts(fields, "createdAt"),
		UpdatedAt:   ts(fields, "updatedAt"),
		AcceptedAt:  ts(fields, "acceptedAt"),
		CompletedAt: ts(fields, "completedAt"),
		CancelledAt: ts(fields, "cancelledAt"),
		ExpiresAt:   ts(fields, "expiresAt"),

		ViewingDriverID: str(fields, "viewingDriverId"),
		ViewedAt:        ts(fields, "viewedAt"),
		ResetCount:      i(fields, "resetCount"),
		ExtendedTimes:   i(fields, "extendedTimes"),

		CancelReason:       str(fields, "cancelReason"),
		CancellationFee:    f64(fields, "cancellationFee"),
		RefundAmount:       f64(fields, "refundAmount"),
		DriverCompensation: f64(fields, "driverCompensation"),
		RefundID:           str(fields, "refundId"),
	}

	if place := obj(fields, "pickup"); place != nil {
		o.Pickup = domain.Place{
			Address:   str(place, "address"),
			Latitude:  f64(place, "latitude"),
			Longitude: f64(place, "longitude"),
		}
	}
	if place := obj(fields, "dropoff"); place != nil {
		o.Dropoff = domain.Place{
			Address:   str(place, "address"),
			Latitude:  f64(place, "latitude"),
			Longitude: f64(place, "longitude"),
		}
	}
	if pricing := obj(fields, "pricing"); pricing != nil {
		o.Pricing = domain.Pricing{Total: f64(pricing, "total")}
	}
	if loc := obj(fields, "driverLocation"); loc != nil {
		o.DriverLocation = &domain.LatLng{
			Latitude:  f64(loc, "latitude"),
			Longitude: f64(loc, "longitude"),
		}
	}

	pickupPhotos := strSlice(fields, "pickupPhotos")
	dropoffPhotos := strSlice(fields, "dropoffPhotos")
	if len(pickupPhotos) > 0 || len(dropoffPhotos) > 0 {
		o.Photos = map[string][]string{}
		if len(pickupPhotos) > 0 {
			o.Photos["pickup"] = pickupPhotos
		}
		if len(dropoffPhotos) > 0 {
			o.Photos["dropoff"] = dropoffPhotos
		}
	}
	return o
}
