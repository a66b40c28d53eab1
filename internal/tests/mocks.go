package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"

	"courier/internal/domain"
	"courier/internal/gateway"
	"courier/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	CreateCallCount  int32
	PatchCallCount   int32
	PatchIfCallCount int32

	// Error injection
	CreateError  error
	GetError     error
	PatchError   error
	PatchIfError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder seeds an order into the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// GetOrder returns the stored order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) GetAll(ctx context.Context) ([]*domain.Order, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		copy := *o
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockOrderRepository) Patch(ctx context.Context, id string, fields map[string]any) error {
	atomic.AddInt32(&m.PatchCallCount, 1)
	if m.PatchError != nil {
		return m.PatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	applyOrderPatch(order, fields)
	return nil
}

func (m *MockOrderRepository) PatchIf(ctx context.Context, id string, fields map[string]any, field, equals string) error {
	atomic.AddInt32(&m.PatchIfCallCount, 1)
	if m.PatchIfError != nil {
		return m.PatchIfError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if field == "status" && string(order.Status) != equals {
		return repository.ErrConflict
	}
	applyOrderPatch(order, fields)
	return nil
}

// applyOrderPatch mirrors the field paths the services write so that reads
// after a patch observe the update.
func applyOrderPatch(o *domain.Order, fields map[string]any) {
	for path, value := range fields {
		switch path {
		case "status":
			o.Status = domain.OrderStatus(cast.ToString(value))
		case "driverId":
			o.DriverID = cast.ToString(value)
		case "viewingDriverId":
			if value == nil {
				o.ViewingDriverID = ""
			} else {
				o.ViewingDriverID = cast.ToString(value)
			}
		case "viewedAt":
			o.ViewedAt = toTime(value)
		case "expiresAt":
			o.ExpiresAt = toTime(value)
		case "resetCount":
			o.ResetCount = cast.ToInt(value)
		case "extendedTimes":
			o.ExtendedTimes = cast.ToInt(value)
		case "updatedAt":
			o.UpdatedAt = toTime(value)
		case "acceptedAt":
			o.AcceptedAt = toTime(value)
		case "startedAt", "arrivedAtPickupAt", "pickedUpAt", "enRouteAt", "arrivedAtDropoffAt":
			// Stage timestamps the lifecycle tests do not assert on.
		case "completedAt":
			o.CompletedAt = toTime(value)
		case "cancelledAt":
			o.CancelledAt = toTime(value)
		case "cancelReason":
			o.CancelReason = cast.ToString(value)
		case "cancellationFee":
			o.CancellationFee = cast.ToFloat64(value)
		case "refundAmount":
			o.RefundAmount = cast.ToFloat64(value)
		case "driverCompensation":
			o.DriverCompensation = cast.ToFloat64(value)
		case "refundId":
			o.RefundID = cast.ToString(value)
		case "driverLocation.latitude":
			if o.DriverLocation == nil {
				o.DriverLocation = &domain.LatLng{}
			}
			o.DriverLocation.Latitude = cast.ToFloat64(value)
		case "driverLocation.longitude":
			if o.DriverLocation == nil {
				o.DriverLocation = &domain.LatLng{}
			}
			o.DriverLocation.Longitude = cast.ToFloat64(value)
		case "pickupPhotos":
			if o.Photos == nil {
				o.Photos = map[string][]string{}
			}
			o.Photos["pickup"] = cast.ToStringSlice(value)
		case "dropoffPhotos":
			if o.Photos == nil {
				o.Photos = map[string][]string{}
			}
			o.Photos["dropoff"] = cast.ToStringSlice(value)
		}
	}
}

func toTime(value any) time.Time {
	if t, ok := value.(time.Time); ok {
		return t
	}
	return time.Time{}
}

// ──────────────────────────────────────────────
// MOCK CONVERSATION REPOSITORY
// ──────────────────────────────────────────────

// MockConversationRepository is a mock implementation of ConversationRepository.
type MockConversationRepository struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation

	// Counters for verification
	CreateCallCount int32
	PatchCallCount  int32

	// Error injection
	CreateError error
	PatchError  error
}

// NewMockConversationRepository creates a new mock conversation repository.
func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{
		convs: make(map[string]*domain.Conversation),
	}
}

// AddConversation seeds a conversation into the mock repository.
func (m *MockConversationRepository) AddConversation(conv *domain.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.ID] = conv
}

// GetConversation returns the stored conversation for test assertions.
func (m *MockConversationRepository) GetConversation(id string) *domain.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.convs[id]
}

func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.ID] = conv
	return nil
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *conv
	return &copy, nil
}

func (m *MockConversationRepository) GetAll(ctx context.Context) ([]*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Conversation, 0, len(m.convs))
	for _, c := range m.convs {
		copy := *c
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockConversationRepository) Patch(ctx context.Context, id string, fields map[string]any) error {
	atomic.AddInt32(&m.PatchCallCount, 1)
	if m.PatchError != nil {
		return m.PatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for path, value := range fields {
		switch path {
		case "lastMessage":
			conv.LastMessage = cast.ToString(value)
		case "lastMessageAt":
			conv.LastMessageAt = toTime(value)
		case "unreadByCustomer":
			conv.UnreadByCustomer = cast.ToInt(value)
		case "unreadByDriver":
			conv.UnreadByDriver = cast.ToInt(value)
		case "updatedAt":
			conv.UpdatedAt = toTime(value)
		}
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK MESSAGE REPOSITORY
// ──────────────────────────────────────────────

// MockMessageRepository is a mock implementation of MessageRepository.
type MockMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message

	// Counters for verification
	CreateCallCount   int32
	MarkReadCallCount int32

	// Error injection
	CreateError error
}

// NewMockMessageRepository creates a new mock message repository.
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		messages: make(map[string]*domain.Message),
	}
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	return nil
}

func (m *MockMessageRepository) GetByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Message, 0)
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			copy := *msg
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SentAt.Before(result[j].SentAt) })
	return result, nil
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, id string) error {
	atomic.AddInt32(&m.MarkReadCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	msg.Read = true
	return nil
}

// ──────────────────────────────────────────────
// MOCK SETTLEMENT GATEWAY
// ──────────────────────────────────────────────

// MockSettlementGateway is a mock implementation of SettlementGateway.
type MockSettlementGateway struct {
	mu sync.Mutex

	// Counters for verification
	CancelCallCount int32
	PayoutCallCount int32

	// Canned results and error injection
	CancelResult *gateway.CancelOrderResult
	CancelError  error
	PayoutError  error

	// Captured requests for assertions
	LastCancel gateway.CancelOrderRequest
	LastPayout gateway.PayoutRequest
}

// NewMockSettlementGateway creates a new mock settlement gateway.
func NewMockSettlementGateway() *MockSettlementGateway {
	return &MockSettlementGateway{
		CancelResult: &gateway.CancelOrderResult{Success: true},
	}
}

func (m *MockSettlementGateway) CancelOrder(ctx context.Context, req gateway.CancelOrderRequest) (*gateway.CancelOrderResult, error) {
	atomic.AddInt32(&m.CancelCallCount, 1)
	m.mu.Lock()
	m.LastCancel = req
	m.mu.Unlock()
	if m.CancelError != nil {
		return nil, m.CancelError
	}
	return m.CancelResult, nil
}

func (m *MockSettlementGateway) ProcessTripPayout(ctx context.Context, req gateway.PayoutRequest) error {
	atomic.AddInt32(&m.PayoutCallCount, 1)
	m.mu.Lock()
	m.LastPayout = req
	m.mu.Unlock()
	return m.PayoutError
}

// ──────────────────────────────────────────────
// MOCK PRESENCE GATEWAY
// ──────────────────────────────────────────────

// MockPresenceGateway is a mock implementation of PresenceGateway.
type MockPresenceGateway struct {
	mu sync.Mutex

	// Counters for verification
	OnlineCallCount    int32
	OfflineCallCount   int32
	HeartbeatCallCount int32

	// Canned results and error injection
	SessionID      string
	Online         []domain.OnlineDriver
	OnlineError    error
	OfflineError   error
	HeartbeatError error

	// Captured inputs for assertions
	LastHeartbeat domain.LatLng
}

// NewMockPresenceGateway creates a new mock presence gateway.
func NewMockPresenceGateway() *MockPresenceGateway {
	return &MockPresenceGateway{SessionID: "session-1"}
}

func (m *MockPresenceGateway) DriverOnline(ctx context.Context, driverID string, loc domain.LatLng) (string, error) {
	atomic.AddInt32(&m.OnlineCallCount, 1)
	if m.OnlineError != nil {
		return "", m.OnlineError
	}
	return m.SessionID, nil
}

func (m *MockPresenceGateway) DriverOffline(ctx context.Context, driverID, sessionID string) (*gateway.OfflineResult, error) {
	atomic.AddInt32(&m.OfflineCallCount, 1)
	if m.OfflineError != nil {
		return nil, m.OfflineError
	}
	return &gateway.OfflineResult{Success: true, OnlineMinutes: 12}, nil
}

func (m *MockPresenceGateway) Heartbeat(ctx context.Context, driverID, sessionID string, loc domain.LatLng) error {
	atomic.AddInt32(&m.HeartbeatCallCount, 1)
	m.mu.Lock()
	m.LastHeartbeat = loc
	m.mu.Unlock()
	return m.HeartbeatError
}

func (m *MockPresenceGateway) OnlineDrivers(ctx context.Context, lat, lng, radiusMiles float64) ([]domain.OnlineDriver, error) {
	return m.Online, nil
}
