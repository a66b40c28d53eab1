package tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"courier/internal/domain"
	"courier/internal/logger"
	"courier/internal/service"
)

func acceptedOrder(id string) *domain.Order {
	o := pendingOrder(id)
	o.Status = domain.OrderStatusAccepted
	o.DriverID = "driver-1"
	return o
}

// ──────────────────────────────────────────────
// CONVERSATION BOOTSTRAP
// ──────────────────────────────────────────────

func TestEnsureConversation_CreatesDeterministicID(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	sess := driverSession("driver-1")
	sess.SetDisplayName("Dana")
	chat := service.NewChatService(convs, msgs, sess, pollingConfig(), logger.NewNop())

	conv, err := chat.EnsureConversation(context.Background(), acceptedOrder("order-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := "order-1_customer-1_driver-1"; conv.ID != want {
		t.Errorf("expected conversation ID %q, got %q", want, conv.ID)
	}
	if conv.DriverName != "Dana" {
		t.Errorf("expected driver display name denormalized, got %q", conv.DriverName)
	}
}

func TestEnsureConversation_IsIdempotent(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	order := acceptedOrder("order-1")
	first, err := chat.EnsureConversation(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := chat.EnsureConversation(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the same conversation, got %q and %q", first.ID, second.ID)
	}
	if convs.CreateCallCount != 1 {
		t.Errorf("expected exactly one create, got %d", convs.CreateCallCount)
	}
}

func TestEnsureConversation_RequiresBothParties(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	order := pendingOrder("order-1") // no driver assigned yet
	if _, err := chat.EnsureConversation(context.Background(), order); err != service.ErrInvalidDriverID {
		t.Errorf("expected ErrInvalidDriverID, got %v", err)
	}
}

// ──────────────────────────────────────────────
// MESSAGING
// ──────────────────────────────────────────────

func seedConversation(convs *MockConversationRepository) *domain.Conversation {
	conv := &domain.Conversation{
		ID:         domain.ConversationID("order-1", "customer-1", "driver-1"),
		OrderID:    "order-1",
		CustomerID: "customer-1",
		DriverID:   "driver-1",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	convs.AddConversation(conv)
	return conv
}

func TestSendMessage_UpdatesPreviewAndUnreadCounter(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	msg, err := chat.SendMessage(context.Background(), conv.ID, "on my way")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.SenderType != domain.SenderTypeDriver {
		t.Errorf("expected driver sender type, got %s", msg.SenderType)
	}

	stored := convs.GetConversation(conv.ID)
	if stored.LastMessage != "on my way" {
		t.Errorf("expected preview updated, got %q", stored.LastMessage)
	}
	if stored.UnreadByCustomer != 1 {
		t.Errorf("expected the customer's unread counter bumped, got %d", stored.UnreadByCustomer)
	}
	if stored.UnreadByDriver != 0 {
		t.Errorf("sender's own counter must not change, got %d", stored.UnreadByDriver)
	}
}

func TestSendMessage_TruncatesLongPreview(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	long := strings.Repeat("a", 200)
	if _, err := chat.SendMessage(context.Background(), conv.ID, long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := convs.GetConversation(conv.ID)
	if len(stored.LastMessage) >= len(long) {
		t.Errorf("expected truncated preview, got %d chars", len(stored.LastMessage))
	}
}

func TestSendMessage_RejectsEmptyContent(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	if _, err := chat.SendMessage(context.Background(), conv.ID, ""); err != service.ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSendMessage_RejectsNonParticipants(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)
	chat := service.NewChatService(convs, msgs, driverSession("driver-9"), pollingConfig(), logger.NewNop())

	if _, err := chat.SendMessage(context.Background(), conv.ID, "hello"); err != service.ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
	if msgs.CreateCallCount != 0 {
		t.Errorf("expected no message written, got %d", msgs.CreateCallCount)
	}
}

func TestSendMessage_SurvivesPreviewPatchFailure(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)
	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	convs.PatchError = service.ErrNotParticipant // any error will do
	msg, err := chat.SendMessage(context.Background(), conv.ID, "committed anyway")
	if err != nil {
		t.Fatalf("the message itself is committed, got %v", err)
	}
	if msgs.CreateCallCount != 1 || msg == nil {
		t.Error("expected the message to be stored despite the preview failure")
	}
}

// ──────────────────────────────────────────────
// READ TRACKING
// ──────────────────────────────────────────────

func TestMarkRead_ClearsOwnCounterAndFlagsOthersMessages(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	conv := seedConversation(convs)

	driverChat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())
	customerChat := service.NewChatService(convs, msgs, customerSession("customer-1"), pollingConfig(), logger.NewNop())

	if _, err := driverChat.SendMessage(context.Background(), conv.ID, "arriving in 5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := customerChat.MarkRead(context.Background(), conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := convs.GetConversation(conv.ID).UnreadByCustomer; got != 0 {
		t.Errorf("expected customer's unread counter cleared, got %d", got)
	}
	list, _ := msgs.GetByConversation(context.Background(), conv.ID)
	if len(list) != 1 || !list[0].Read {
		t.Errorf("expected the driver's message flagged read, got %+v", list)
	}
}

func TestConversations_FiltersByParticipant(t *testing.T) {
	t.Parallel()

	convs := NewMockConversationRepository()
	msgs := NewMockMessageRepository()
	seedConversation(convs)
	convs.AddConversation(&domain.Conversation{
		ID:         domain.ConversationID("order-2", "customer-2", "driver-2"),
		OrderID:    "order-2",
		CustomerID: "customer-2",
		DriverID:   "driver-2",
	})

	chat := service.NewChatService(convs, msgs, driverSession("driver-1"), pollingConfig(), logger.NewNop())

	list, err := chat.Conversations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].DriverID != "driver-1" {
		t.Fatalf("expected only driver-1's conversation, got %d", len(list))
	}
}
