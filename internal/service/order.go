package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/gateway"
	"courier/internal/logger"
	"courier/internal/policy"
	"courier/internal/polling"
	"courier/internal/repository"
	"courier/internal/session"
)

// SettlementGateway is the slice of the backend gateway the order lifecycle
// needs. The gateway computes the authoritative monetary outcomes.
type SettlementGateway interface {
	CancelOrder(ctx context.Context, req gateway.CancelOrderRequest) (*gateway.CancelOrderResult, error)
	ProcessTripPayout(ctx context.Context, req gateway.PayoutRequest) error
}

// OrderService drives the order state machine: creation, expiry, claiming,
// acceptance, per-stage transitions, completion, and cancellation.
type OrderService struct {
	orders     repository.OrderRepository
	chat       *ChatService
	settlement SettlementGateway
	sess       *session.Session
	cfg        config.LifecycleConfig
	poll       config.PollingConfig
	log        logger.Logger
}

// NewOrderService creates an OrderService acting for the given session.
// chat may be nil when the conversation side effect is not wanted.
func NewOrderService(
	orders repository.OrderRepository,
	chat *ChatService,
	settlement SettlementGateway,
	sess *session.Session,
	cfg config.LifecycleConfig,
	poll config.PollingConfig,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		orders:     orders,
		chat:       chat,
		settlement: settlement,
		sess:       sess,
		cfg:        cfg,
		poll:       poll,
		log:        log,
	}
}

// CreateOrderRequest contains the parameters for creating an order.
type CreateOrderRequest struct {
	Pickup        domain.Place
	Dropoff       domain.Place
	Total         float64
	PaymentMethod domain.PaymentMethod
}

// CreateOrder creates a pending offer owned by the session's customer. The
// offer expires after the configured TTL unless a driver accepts it first;
// expired offers are recycled by the reaper, not dropped.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if s.sess.UserID() == "" {
		return nil, ErrInvalidCustomerID
	}
	if req.Total <= 0 {
		return nil, ErrInvalidTotal
	}
	if !isValidLatitude(req.Pickup.Latitude) || !isValidLongitude(req.Pickup.Longitude) ||
		!isValidLatitude(req.Dropoff.Latitude) || !isValidLongitude(req.Dropoff.Longitude) {
		return nil, ErrInvalidLocation
	}

	now := time.Now()
	order := &domain.Order{
		ID:            uuid.New().String(),
		Status:        domain.OrderStatusPending,
		CustomerID:    s.sess.UserID(),
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
		Pricing:       domain.Pricing{Total: req.Total},
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.OfferTTL),
		ResetCount:    0,
		ExtendedTimes: 0,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	return s.orders.GetByID(ctx, orderID)
}

// ListOpenOffers returns pending, unexpired orders available to drivers.
// Filtering happens client-side; the store has no query support here.
func (s *OrderService) ListOpenOffers(ctx context.Context) ([]*domain.Order, error) {
	all, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	open := make([]*domain.Order, 0)
	for _, o := range all {
		if o.Status == domain.OrderStatusPending && o.ExpiresAt.After(now) {
			open = append(open, o)
		}
	}
	return open, nil
}

// ListOrdersForCustomer returns the session customer's orders.
func (s *OrderService) ListOrdersForCustomer(ctx context.Context) ([]*domain.Order, error) {
	return s.listBy(ctx, func(o *domain.Order) bool {
		return o.CustomerID == s.sess.UserID()
	})
}

// ListOrdersForDriver returns orders assigned to the session driver.
func (s *OrderService) ListOrdersForDriver(ctx context.Context) ([]*domain.Order, error) {
	return s.listBy(ctx, func(o *domain.Order) bool {
		return o.DriverID == s.sess.UserID()
	})
}

func (s *OrderService) listBy(ctx context.Context, keep func(*domain.Order) bool) ([]*domain.Order, error) {
	all, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]*domain.Order, 0)
	for _, o := range all {
		if keep(o) {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

// ClaimForViewing marks the offer as being looked at by the session driver.
// This is an advisory, non-exclusive hint for UI dimming only; acceptance is
// guarded separately by a store-side precondition.
func (s *OrderService) ClaimForViewing(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrInvalidOrderID
	}
	return s.orders.Patch(ctx, orderID, map[string]any{
		"viewingDriverId": s.sess.UserID(),
		"viewedAt":        time.Now(),
	})
}

// ReleaseClaim clears the advisory viewing hint.
func (s *OrderService) ReleaseClaim(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrInvalidOrderID
	}
	return s.orders.Patch(ctx, orderID, map[string]any{
		"viewingDriverId": nil,
	})
}

// ExtendOffer adds decision time to a pending offer's expiry.
func (s *OrderService) ExtendOffer(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	order.ExpiresAt = order.ExpiresAt.Add(s.cfg.ExtendBy)
	order.ExtendedTimes++

	err = s.orders.Patch(ctx, orderID, map[string]any{
		"expiresAt":     order.ExpiresAt,
		"extendedTimes": order.ExtendedTimes,
		"updatedAt":     time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// AcceptOrder assigns the session driver to a pending order. The write is
// conditional on the order still being pending, enforced by the store, so
// two drivers racing on the same offer cannot both win. As a side effect a
// conversation between the two parties is ensured (idempotent).
func (s *OrderService) AcceptOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	driverID := s.sess.UserID()
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	now := time.Now()
	err = s.orders.PatchIf(ctx, orderID, map[string]any{
		"status":          string(domain.OrderStatusAccepted),
		"driverId":        driverID,
		"acceptedAt":      now,
		"updatedAt":       now,
		"viewingDriverId": nil,
	}, "status", string(domain.OrderStatusPending))
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrOrderAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusAccepted
	order.DriverID = driverID
	order.AcceptedAt = now
	order.UpdatedAt = now
	order.ViewingDriverID = ""

	// Conversation creation is a best-effort side effect: the acceptance is
	// already committed and stands even if chat bootstrapping fails.
	if s.chat != nil {
		if _, err := s.chat.EnsureConversation(ctx, order); err != nil {
			s.log.Warn("conversation bootstrap failed",
				logger.String("orderId", order.ID), logger.Error(err))
		}
	}
	return order, nil
}

// AdvanceStageRequest contains the parameters for a driver stage transition.
type AdvanceStageRequest struct {
	OrderID  string
	To       domain.OrderStatus
	Location *domain.LatLng
	// PhotoURLs is photo evidence for stages that require it (pickup and
	// dropoff confirmation).
	PhotoURLs []string
}

// AdvanceStage moves an accepted order along the stage graph, recording the
// stage timestamp and optionally the driver's position and photo evidence.
// Reaching completed triggers the payout side effect.
func (s *OrderService) AdvanceStage(ctx context.Context, req AdvanceStageRequest) (*domain.Order, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}

	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.DriverID != s.sess.UserID() {
		return nil, ErrNotAssignedDriver
	}
	if !domain.CanTransition(order.Status, req.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, req.To)
	}

	// Pickup/dropoff confirmation requires at least one photo. This is a
	// client-side policy gate, not something the store enforces.
	stage := domain.PhotoStage(req.To)
	if stage != "" && len(req.PhotoURLs) == 0 && len(order.Photos[stage]) == 0 {
		return nil, ErrPhotoRequired
	}

	now := time.Now()
	fields := map[string]any{
		"status":    string(req.To),
		"updatedAt": now,
	}
	if tsField := domain.StageTimestampField(req.To); tsField != "" {
		fields[tsField] = now
	}
	if req.Location != nil {
		if !isValidLatitude(req.Location.Latitude) || !isValidLongitude(req.Location.Longitude) {
			return nil, ErrInvalidLocation
		}
		fields["driverLocation.latitude"] = req.Location.Latitude
		fields["driverLocation.longitude"] = req.Location.Longitude
	}
	if stage != "" && len(req.PhotoURLs) > 0 {
		photos := append(append([]string{}, order.Photos[stage]...), req.PhotoURLs...)
		fields[stage+"Photos"] = photos
		if order.Photos == nil {
			order.Photos = map[string][]string{}
		}
		order.Photos[stage] = photos
	}

	if err := s.orders.Patch(ctx, req.OrderID, fields); err != nil {
		return nil, err
	}

	order.Status = req.To
	order.UpdatedAt = now
	if req.Location != nil {
		order.DriverLocation = req.Location
	}
	if req.To == domain.OrderStatusCompleted {
		order.CompletedAt = now
		s.payOut(ctx, order)
	}
	return order, nil
}

// payOut issues the settlement request for a completed order. Settlement
// failure does not roll back the completed status; the payout can be
// retried out of band.
func (s *OrderService) payOut(ctx context.Context, order *domain.Order) {
	earnings := s.Earnings(order.Pricing.Total)
	err := s.settlement.ProcessTripPayout(ctx, gateway.PayoutRequest{
		TripID:   order.ID,
		DriverID: order.DriverID,
		Amount:   earnings,
	})
	if err != nil {
		s.log.Warn("payout failed, order stays completed",
			logger.String("orderId", order.ID),
			logger.Float64("amount", earnings),
			logger.Error(err))
	}
}

// Earnings computes the driver's pay for an order: a fixed share of the
// total with a guaranteed minimum per order.
func (s *OrderService) Earnings(total float64) float64 {
	earnings := total * s.cfg.EarningsShare
	if earnings < s.cfg.EarningsFloor {
		return s.cfg.EarningsFloor
	}
	return earnings
}

// CancelRequest contains the parameters for cancelling an order.
type CancelRequest struct {
	OrderID string
	Reason  string
}

// Cancel cancels an order if the policy allows it. The settlement service
// computes the authoritative fee, refund, and compensation, which are then
// written with the cancelled status.
func (s *OrderService) Cancel(ctx context.Context, req CancelRequest) (*domain.Order, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}

	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	verdict := policy.EvaluateCancellation(order)
	if !verdict.CanCancel {
		return nil, fmt.Errorf("%w: %s", ErrCancellationNotAllowed, verdict.Reason)
	}

	settled, err := s.settlement.CancelOrder(ctx, gateway.CancelOrderRequest{
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Reason:         req.Reason,
		DriverLocation: order.DriverLocation,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.orders.Patch(ctx, req.OrderID, map[string]any{
		"status":             string(domain.OrderStatusCancelled),
		"cancelledAt":        now,
		"updatedAt":          now,
		"cancelReason":       req.Reason,
		"cancellationFee":    settled.CancellationFee,
		"refundAmount":       settled.RefundAmount,
		"driverCompensation": settled.DriverCompensation,
		"refundId":           settled.RefundID,
	})
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = now
	order.UpdatedAt = now
	order.CancelReason = req.Reason
	order.CancellationFee = settled.CancellationFee
	order.RefundAmount = settled.RefundAmount
	order.DriverCompensation = settled.DriverCompensation
	order.RefundID = settled.RefundID
	return order, nil
}

// WatchOrder polls one order and delivers each fetched snapshot. The caller
// must Stop the subscription on every exit path of the owning screen.
func (s *OrderService) WatchOrder(ctx context.Context, orderID string, onChange func(*domain.Order), onError func(error)) *polling.Subscription[*domain.Order] {
	return polling.Subscribe(ctx,
		func(ctx context.Context) (*domain.Order, error) {
			return s.orders.GetByID(ctx, orderID)
		},
		polling.Options{
			Interval:    s.poll.OrderInterval,
			MaxAttempts: s.poll.MaxAttempts,
			Backoff:     s.poll.Backoff,
		},
		onChange, onError)
}

// WatchOpenOffers polls the open-offer listing for driver home screens.
func (s *OrderService) WatchOpenOffers(ctx context.Context, onChange func([]*domain.Order), onError func(error)) *polling.Subscription[[]*domain.Order] {
	return polling.Subscribe(ctx,
		func(ctx context.Context) ([]*domain.Order, error) {
			return s.ListOpenOffers(ctx)
		},
		polling.Options{
			Interval:    s.poll.ListInterval,
			MaxAttempts: s.poll.MaxAttempts,
			Backoff:     s.poll.Backoff,
		},
		onChange, onError)
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
