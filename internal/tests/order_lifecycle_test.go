package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/gateway"
	"courier/internal/logger"
	"courier/internal/repository"
	"courier/internal/service"
	"courier/internal/session"
)

func lifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		OfferTTL:      4 * time.Minute,
		ExtendBy:      2 * time.Minute,
		ReapInterval:  30 * time.Second,
		EarningsShare: 0.70,
		EarningsFloor: 5.00,
	}
}

func pollingConfig() config.PollingConfig {
	return config.PollingConfig{
		MessageInterval: 10 * time.Millisecond,
		OrderInterval:   10 * time.Millisecond,
		ListInterval:    10 * time.Millisecond,
		MaxAttempts:     3,
		Backoff:         time.Millisecond,
	}
}

func driverSession(id string) *session.Session {
	return session.New(id, session.RoleDriver, "test-token")
}

func customerSession(id string) *session.Session {
	return session.New(id, session.RoleCustomer, "test-token")
}

func newOrderService(orders *MockOrderRepository, settlement *MockSettlementGateway, sess *session.Session) *service.OrderService {
	return service.NewOrderService(orders, nil, settlement, sess, lifecycleConfig(), pollingConfig(), logger.NewNop())
}

func pendingOrder(id string) *domain.Order {
	now := time.Now()
	return &domain.Order{
		ID:            id,
		Status:        domain.OrderStatusPending,
		CustomerID:    "customer-1",
		Pickup:        domain.Place{Address: "1 Main St", Latitude: 37.77, Longitude: -122.42},
		Dropoff:       domain.Place{Address: "9 Oak Ave", Latitude: 37.80, Longitude: -122.41},
		Pricing:       domain.Pricing{Total: 40.00},
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(4 * time.Minute),
	}
}

// ──────────────────────────────────────────────
// ORDER CREATION
// ──────────────────────────────────────────────

func TestCreateOrder_ValidatesTotal(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	svc := newOrderService(orders, NewMockSettlementGateway(), customerSession("customer-1"))

	_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		Pickup:  domain.Place{Latitude: 37.77, Longitude: -122.42},
		Dropoff: domain.Place{Latitude: 37.80, Longitude: -122.41},
		Total:   0,
	})

	if err != service.ErrInvalidTotal {
		t.Errorf("expected ErrInvalidTotal, got %v", err)
	}
}

func TestCreateOrder_ValidatesCoordinates(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	svc := newOrderService(orders, NewMockSettlementGateway(), customerSession("customer-1"))

	testCases := []struct {
		name    string
		pickup  domain.Place
		dropoff domain.Place
	}{
		{"pickup latitude too high", domain.Place{Latitude: 91, Longitude: 0}, domain.Place{}},
		{"pickup longitude too low", domain.Place{Latitude: 0, Longitude: -181}, domain.Place{}},
		{"dropoff latitude too low", domain.Place{}, domain.Place{Latitude: -91, Longitude: 0}},
		{"dropoff longitude too high", domain.Place{}, domain.Place{Latitude: 0, Longitude: 181}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
				Pickup:  tc.pickup,
				Dropoff: tc.dropoff,
				Total:   25,
			})

			if err != service.ErrInvalidLocation {
				t.Errorf("expected ErrInvalidLocation, got %v", err)
			}
		})
	}
}

func TestCreateOrder_StartsPendingWithExpiry(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	svc := newOrderService(orders, NewMockSettlementGateway(), customerSession("customer-1"))

	before := time.Now()
	order, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		Pickup:  domain.Place{Address: "1 Main St", Latitude: 37.77, Longitude: -122.42},
		Dropoff: domain.Place{Address: "9 Oak Ave", Latitude: 37.80, Longitude: -122.41},
		Total:   25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", order.Status)
	}
	if order.CustomerID != "customer-1" {
		t.Errorf("expected session customer as owner, got %s", order.CustomerID)
	}

	wantExpiry := before.Add(4 * time.Minute)
	if order.ExpiresAt.Before(wantExpiry) || order.ExpiresAt.After(wantExpiry.Add(time.Second)) {
		t.Errorf("expected expiry ~4m after creation, got %v", order.ExpiresAt)
	}
}

// ──────────────────────────────────────────────
// OFFER LISTING AND CLAIMS
// ──────────────────────────────────────────────

func TestListOpenOffers_ExcludesExpiredAndNonPending(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	open := pendingOrder("order-open")
	orders.AddOrder(open)

	expired := pendingOrder("order-expired")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	orders.AddOrder(expired)

	accepted := pendingOrder("order-accepted")
	accepted.Status = domain.OrderStatusAccepted
	orders.AddOrder(accepted)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	offers, err := svc.ListOpenOffers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 || offers[0].ID != "order-open" {
		t.Fatalf("expected only the open offer, got %d offers", len(offers))
	}
}

func TestClaimForViewing_IsAdvisoryOnly(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))

	first := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))
	second := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-2"))

	if err := first.ClaimForViewing(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A second driver can overwrite the hint; it is not a lock.
	if err := second.ClaimForViewing(context.Background(), "order-1"); err != nil {
		t.Fatalf("expected advisory claim to be overwritable, got %v", err)
	}
	if got := orders.GetOrder("order-1").ViewingDriverID; got != "driver-2" {
		t.Errorf("expected viewing hint driver-2, got %q", got)
	}

	if err := second.ReleaseClaim(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := orders.GetOrder("order-1").ViewingDriverID; got != "" {
		t.Errorf("expected cleared viewing hint, got %q", got)
	}
}

func TestExtendOffer_AddsTimeAndCountsExtensions(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	originalExpiry := order.ExpiresAt
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	extended, err := svc.ExtendOffer(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := originalExpiry.Add(2 * time.Minute); !extended.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, extended.ExpiresAt)
	}
	if extended.ExtendedTimes != 1 {
		t.Errorf("expected ExtendedTimes 1, got %d", extended.ExtendedTimes)
	}
}

func TestExtendOffer_RejectsNonPending(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusAccepted
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	if _, err := svc.ExtendOffer(context.Background(), "order-1"); err != service.ErrOrderNotPending {
		t.Errorf("expected ErrOrderNotPending, got %v", err)
	}
}

// ──────────────────────────────────────────────
// ACCEPTANCE
// ──────────────────────────────────────────────

func TestAcceptOrder_AssignsSessionDriver(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.ViewingDriverID = "driver-1"
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	accepted, err := svc.AcceptOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != domain.OrderStatusAccepted {
		t.Errorf("expected accepted status, got %s", accepted.Status)
	}
	if accepted.DriverID != "driver-1" {
		t.Errorf("expected driver-1 assigned, got %s", accepted.DriverID)
	}
	if accepted.ViewingDriverID != "" {
		t.Errorf("expected viewing hint cleared on acceptance")
	}
	if orders.PatchIfCallCount != 1 {
		t.Errorf("expected a conditional write, got %d", orders.PatchIfCallCount)
	}
}

func TestAcceptOrder_LosingTheRaceReturnsAlreadyClaimed(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))

	first := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))
	second := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-2"))

	if _, err := first.AcceptOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := second.AcceptOrder(context.Background(), "order-1"); err != service.ErrOrderNotPending {
		t.Errorf("expected ErrOrderNotPending on re-read, got %v", err)
	}
	if got := orders.GetOrder("order-1").DriverID; got != "driver-1" {
		t.Errorf("expected driver-1 to keep the order, got %s", got)
	}
}

func TestAcceptOrder_StoreConflictMapsToAlreadyClaimed(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))
	// The local read saw pending, but the conditional write loses.
	orders.PatchIfError = repository.ErrConflict

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-2"))

	if _, err := svc.AcceptOrder(context.Background(), "order-1"); err != service.ErrOrderAlreadyClaimed {
		t.Errorf("expected ErrOrderAlreadyClaimed, got %v", err)
	}
}

func TestAcceptOrder_BootstrapsConversation(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))
	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()

	sess := driverSession("driver-1")
	sess.SetDisplayName("Dana")
	chat := service.NewChatService(convs, msgs, sess, pollingConfig(), logger.NewNop())
	svc := service.NewOrderService(orders, chat, NewMockSettlementGateway(), sess, lifecycleConfig(), pollingConfig(), logger.NewNop())

	if _, err := svc.AcceptOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	convID := domain.ConversationID("order-1", "customer-1", "driver-1")
	conv := convs.GetConversation(convID)
	if conv == nil {
		t.Fatal("expected conversation to be created on acceptance")
	}
	if conv.DriverName != "Dana" {
		t.Errorf("expected denormalized driver name, got %q", conv.DriverName)
	}
}

func TestAcceptOrder_SurvivesConversationFailure(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))
	convs := NewMockConversationRepository()
	convs.CreateError = errors.New("chat backend down")
	msgs := NewMockMessageRepository()

	sess := driverSession("driver-1")
	chat := service.NewChatService(convs, msgs, sess, pollingConfig(), logger.NewNop())
	svc := service.NewOrderService(orders, chat, NewMockSettlementGateway(), sess, lifecycleConfig(), pollingConfig(), logger.NewNop())

	accepted, err := svc.AcceptOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("acceptance must stand despite chat failure, got %v", err)
	}
	if accepted.Status != domain.OrderStatusAccepted {
		t.Errorf("expected accepted status, got %s", accepted.Status)
	}
}

// ──────────────────────────────────────────────
// STAGE TRANSITIONS
// ──────────────────────────────────────────────

func TestAdvanceStage_RejectsUnassignedDriver(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusAccepted
	order.DriverID = "driver-1"
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-2"))

	_, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID: "order-1",
		To:      domain.OrderStatusArrivedAtPickup,
	})
	if err != service.ErrNotAssignedDriver {
		t.Errorf("expected ErrNotAssignedDriver, got %v", err)
	}
}

func TestAdvanceStage_RejectsOffGraphTransitions(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusAccepted
	order.DriverID = "driver-1"
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	testCases := []struct {
		name string
		to   domain.OrderStatus
	}{
		{"skip to completed", domain.OrderStatusCompleted},
		{"skip to picked up", domain.OrderStatusPickedUp},
		{"back to pending", domain.OrderStatusPending},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
				OrderID: "order-1",
				To:      tc.to,
			})
			if !errors.Is(err, service.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s, got %v", tc.to, err)
			}
		})
	}
}

func TestAdvanceStage_PickupConfirmationRequiresPhoto(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusArrivedAtPickup
	order.DriverID = "driver-1"
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	_, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID: "order-1",
		To:      domain.OrderStatusPickedUp,
	})
	if err != service.ErrPhotoRequired {
		t.Fatalf("expected ErrPhotoRequired, got %v", err)
	}

	advanced, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID:   "order-1",
		To:        domain.OrderStatusPickedUp,
		PhotoURLs: []string{"https://cdn.example.com/pickup-1.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(advanced.Photos["pickup"]) != 1 {
		t.Errorf("expected one pickup photo, got %d", len(advanced.Photos["pickup"]))
	}
}

func TestAdvanceStage_RecordsDriverLocation(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusAccepted
	order.DriverID = "driver-1"
	orders.AddOrder(order)

	svc := newOrderService(orders, NewMockSettlementGateway(), driverSession("driver-1"))

	_, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID:  "order-1",
		To:       domain.OrderStatusArrivedAtPickup,
		Location: &domain.LatLng{Latitude: 37.77, Longitude: -122.42},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := orders.GetOrder("order-1")
	if stored.DriverLocation == nil || stored.DriverLocation.Latitude != 37.77 {
		t.Errorf("expected driver location persisted, got %+v", stored.DriverLocation)
	}
}

func TestAdvanceStage_FullHappyPath(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))
	settlement := NewMockSettlementGateway()

	svc := newOrderService(orders, settlement, driverSession("driver-1"))

	if _, err := svc.AcceptOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	steps := []service.AdvanceStageRequest{
		{OrderID: "order-1", To: domain.OrderStatusArrivedAtPickup},
		{OrderID: "order-1", To: domain.OrderStatusPickedUp, PhotoURLs: []string{"p1.jpg"}},
		{OrderID: "order-1", To: domain.OrderStatusEnRouteToDropoff},
		{OrderID: "order-1", To: domain.OrderStatusArrivedAtDropoff, PhotoURLs: []string{"d1.jpg"}},
		{OrderID: "order-1", To: domain.OrderStatusCompleted},
	}
	for _, step := range steps {
		if _, err := svc.AdvanceStage(context.Background(), step); err != nil {
			t.Fatalf("advance to %s: %v", step.To, err)
		}
	}

	if got := orders.GetOrder("order-1").Status; got != domain.OrderStatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
	if settlement.PayoutCallCount != 1 {
		t.Errorf("expected one payout, got %d", settlement.PayoutCallCount)
	}
}

// ──────────────────────────────────────────────
// EARNINGS AND PAYOUT
// ──────────────────────────────────────────────

func TestEarnings_ShareWithFloor(t *testing.T) {
	t.Parallel()

	svc := newOrderService(NewMockOrderRepository(), NewMockSettlementGateway(), driverSession("driver-1"))

	testCases := []struct {
		name  string
		total float64
		want  float64
	}{
		{"share above floor", 40.00, 28.00},
		{"floor kicks in", 6.00, 5.00},
		{"boundary order", 7.142857142857143, 5.00},
		{"zero total", 0, 5.00},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.Earnings(tc.total); got != tc.want {
				t.Errorf("Earnings(%v) = %v, want %v", tc.total, got, tc.want)
			}
		})
	}
}

func TestCompletion_PayoutCarriesDriverShare(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusArrivedAtDropoff
	order.DriverID = "driver-1"
	order.Photos = map[string][]string{"pickup": {"p1.jpg"}, "dropoff": {"d1.jpg"}}
	orders.AddOrder(order)
	settlement := NewMockSettlementGateway()

	svc := newOrderService(orders, settlement, driverSession("driver-1"))

	if _, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID: "order-1",
		To:      domain.OrderStatusCompleted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settlement.LastPayout.Amount != 28.00 {
		t.Errorf("expected payout 28.00 for a 40.00 order, got %v", settlement.LastPayout.Amount)
	}
	if settlement.LastPayout.DriverID != "driver-1" {
		t.Errorf("expected payout to driver-1, got %s", settlement.LastPayout.DriverID)
	}
}

func TestCompletion_PayoutFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusArrivedAtDropoff
	order.DriverID = "driver-1"
	order.Photos = map[string][]string{"dropoff": {"d1.jpg"}}
	orders.AddOrder(order)
	settlement := NewMockSettlementGateway()
	settlement.PayoutError = errors.New("settlement unavailable")

	svc := newOrderService(orders, settlement, driverSession("driver-1"))

	completed, err := svc.AdvanceStage(context.Background(), service.AdvanceStageRequest{
		OrderID: "order-1",
		To:      domain.OrderStatusCompleted,
	})
	if err != nil {
		t.Fatalf("completion must not fail on payout error, got %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}
	if got := orders.GetOrder("order-1").Status; got != domain.OrderStatusCompleted {
		t.Errorf("expected stored status completed, got %s", got)
	}
}

// ──────────────────────────────────────────────
// CANCELLATION
// ──────────────────────────────────────────────

func TestCancel_WritesSettlementOutcome(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusAccepted
	order.DriverID = "driver-1"
	orders.AddOrder(order)

	settlement := NewMockSettlementGateway()
	settlement.CancelResult = &gateway.CancelOrderResult{
		Success:            true,
		CancellationFee:    3.00,
		RefundAmount:       37.00,
		DriverCompensation: 3.00,
		RefundID:           "re_123",
	}

	svc := newOrderService(orders, settlement, customerSession("customer-1"))

	cancelled, err := svc.Cancel(context.Background(), service.CancelRequest{
		OrderID: "order-1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.RefundAmount != 37.00 || cancelled.RefundID != "re_123" {
		t.Errorf("expected settlement amounts written, got %+v", cancelled)
	}
	if settlement.LastCancel.Reason != "changed my mind" {
		t.Errorf("expected reason forwarded, got %q", settlement.LastCancel.Reason)
	}
}

func TestCancel_RejectedPastPickup(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	order := pendingOrder("order-1")
	order.Status = domain.OrderStatusPickedUp
	order.DriverID = "driver-1"
	orders.AddOrder(order)
	settlement := NewMockSettlementGateway()

	svc := newOrderService(orders, settlement, customerSession("customer-1"))

	_, err := svc.Cancel(context.Background(), service.CancelRequest{OrderID: "order-1"})
	if !errors.Is(err, service.ErrCancellationNotAllowed) {
		t.Fatalf("expected ErrCancellationNotAllowed, got %v", err)
	}
	if settlement.CancelCallCount != 0 {
		t.Errorf("policy gate must run before any settlement call, got %d calls", settlement.CancelCallCount)
	}
}

func TestCancel_SettlementFailureLeavesOrderUntouched(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderRepository()
	orders.AddOrder(pendingOrder("order-1"))
	settlement := NewMockSettlementGateway()
	settlement.CancelError = gateway.ErrRejected

	svc := newOrderService(orders, settlement, customerSession("customer-1"))

	if _, err := svc.Cancel(context.Background(), service.CancelRequest{OrderID: "order-1"}); !errors.Is(err, gateway.ErrRejected) {
		t.Fatalf("expected gateway error surfaced, got %v", err)
	}
	if got := orders.GetOrder("order-1").Status; got != domain.OrderStatusPending {
		t.Errorf("expected order untouched after settlement failure, got %s", got)
	}
}
