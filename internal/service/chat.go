package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/logger"
	"courier/internal/polling"
	"courier/internal/repository"
	"courier/internal/session"
)

// previewLimit bounds the denormalized last-message preview.
const previewLimit = 80

// ChatService handles the conversation and message feed between an order's
// customer and driver.
type ChatService struct {
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	sess  *session.Session
	poll  config.PollingConfig
	log   logger.Logger
}

// NewChatService creates a ChatService acting for the given session.
func NewChatService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	sess *session.Session,
	poll config.PollingConfig,
	log logger.Logger,
) *ChatService {
	return &ChatService{convs: convs, msgs: msgs, sess: sess, poll: poll, log: log}
}

// EnsureConversation creates the conversation for an accepted order if it
// does not exist yet. Idempotent: an existing conversation for the
// (order, customer, driver) triple is only touched, never recreated.
func (s *ChatService) EnsureConversation(ctx context.Context, order *domain.Order) (*domain.Conversation, error) {
	if order.CustomerID == "" {
		return nil, ErrInvalidCustomerID
	}
	if order.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	id := domain.ConversationID(order.ID, order.CustomerID, order.DriverID)

	existing, err := s.convs.GetByID(ctx, id)
	if err == nil {
		_ = s.convs.Patch(ctx, id, map[string]any{"updatedAt": time.Now()})
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:         id,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		DriverID:   order.DriverID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.sess.Role() == session.RoleDriver {
		conv.DriverName = s.sess.DisplayName()
	} else {
		conv.CustomerName = s.sess.DisplayName()
	}

	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// SendMessage appends a message and updates the conversation's denormalized
// preview and the other party's unread counter.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	senderType, err := s.participantType(conv)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       s.sess.UserID(),
		SenderType:     senderType,
		Content:        content,
		SentAt:         now,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"lastMessage":   preview(content),
		"lastMessageAt": now,
		"updatedAt":     now,
	}
	if senderType == domain.SenderTypeDriver {
		fields["unreadByCustomer"] = conv.UnreadByCustomer + 1
	} else {
		fields["unreadByDriver"] = conv.UnreadByDriver + 1
	}
	if err := s.convs.Patch(ctx, conversationID, fields); err != nil {
		// The message itself is committed; a stale preview is repairable on
		// the next send.
		s.log.Warn("conversation preview update failed",
			logger.String("conversationId", conversationID), logger.Error(err))
	}
	return msg, nil
}

// MarkRead clears the session user's unread counter and flags the other
// party's messages as read.
func (s *ChatService) MarkRead(ctx context.Context, conversationID string) error {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	senderType, err := s.participantType(conv)
	if err != nil {
		return err
	}

	counterField := "unreadByDriver"
	if senderType == domain.SenderTypeCustomer {
		counterField = "unreadByCustomer"
	}
	if err := s.convs.Patch(ctx, conversationID, map[string]any{counterField: 0}); err != nil {
		return err
	}

	msgs, err := s.msgs.GetByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.Read || m.SenderID == s.sess.UserID() {
			continue
		}
		if err := s.msgs.MarkRead(ctx, m.ID); err != nil {
			s.log.Warn("failed to mark message read",
				logger.String("messageId", m.ID), logger.Error(err))
		}
	}
	return nil
}

// Messages returns a conversation's messages, oldest first.
func (s *ChatService) Messages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return s.msgs.GetByConversation(ctx, conversationID)
}

// Conversations returns the session user's conversations.
func (s *ChatService) Conversations(ctx context.Context) ([]*domain.Conversation, error) {
	all, err := s.convs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]*domain.Conversation, 0)
	for _, c := range all {
		if c.CustomerID == s.sess.UserID() || c.DriverID == s.sess.UserID() {
			mine = append(mine, c)
		}
	}
	return mine, nil
}

// WatchMessages polls a conversation's message feed. The interval is the
// tightest of the polling tiers since chat is the most latency-sensitive
// consumer.
func (s *ChatService) WatchMessages(ctx context.Context, conversationID string, onChange func([]*domain.Message), onError func(error)) *polling.Subscription[[]*domain.Message] {
	return polling.Subscribe(ctx,
		func(ctx context.Context) ([]*domain.Message, error) {
			return s.msgs.GetByConversation(ctx, conversationID)
		},
		polling.Options{
			Interval:    s.poll.MessageInterval,
			MaxAttempts: s.poll.MaxAttempts,
			Backoff:     s.poll.Backoff,
		},
		onChange, onError)
}

func (s *ChatService) participantType(conv *domain.Conversation) (domain.SenderType, error) {
	switch s.sess.UserID() {
	case conv.CustomerID:
		return domain.SenderTypeCustomer, nil
	case conv.DriverID:
		return domain.SenderTypeDriver, nil
	default:
		return "", ErrNotParticipant
	}
}

func preview(content string) string {
	if len(content) <= previewLimit {
		return content
	}
	return content[:previewLimit]
}
