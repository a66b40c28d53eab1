package remote

import (
	"context"
	"sort"

	"courier/internal/docstore"
	"courier/internal/domain"
	"courier/internal/repository"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// ConversationRepository persists conversations in the remote store.
type ConversationRepository struct {
	client *docstore.Client
}

// NewConversationRepository creates a conversation repository.
func NewConversationRepository(client *docstore.Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

var _ repository.ConversationRepository = (*ConversationRepository)(nil)

func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return translate(r.client.Set(ctx, conversationsCollection, conv.ID, conversationToFields(conv)))
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	fields, err := r.client.Get(ctx, conversationsCollection, id)
	if err != nil {
		return nil, translate(err)
	}
	return conversationFromFields(id, fields), nil
}

func (r *ConversationRepository) GetAll(ctx context.Context) ([]*domain.Conversation, error) {
	docs, err := r.client.List(ctx, conversationsCollection)
	if err != nil {
		return nil, translate(err)
	}
	convs := make([]*domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, conversationFromFields(doc.ID, doc.Fields))
	}
	return convs, nil
}

func (r *ConversationRepository) Patch(ctx context.Context, id string, fields map[string]any) error {
	return translate(r.client.Patch(ctx, conversationsCollection, id, fields))
}

func conversationToFields(c *domain.Conversation) map[string]any {
	return map[string]any{
		"orderId":          c.OrderID,
		"customerId":       c.CustomerID,
		"driverId":         c.DriverID,
		"customerName":     c.CustomerName,
		"driverName":       c.DriverName,
		"lastMessage":      c.LastMessage,
		"lastMessageAt":    c.LastMessageAt,
		"unreadByCustomer": c.UnreadByCustomer,
		"unreadByDriver":   c.UnreadByDriver,
		"createdAt":        c.CreatedAt,
		"updatedAt":        c.UpdatedAt,
	}
}

func conversationFromFields(id string, fields map[string]any) *domain.Conversation {
	return &domain.Conversation{
		ID:               id,
		OrderID:          str(fields, "orderId"),
		CustomerID:       str(fields, "customerId"),
		DriverID:         str(fields, "driverId"),
		CustomerName:     str(fields, "customerName"),
		DriverName:       str(fields, "driverName"),
		LastMessage:      str(fields, "lastMessage"),
		LastMessageAt:    ts(fields, "lastMessageAt"),
		UnreadByCustomer: i(fields, "unreadByCustomer"),
		UnreadByDriver:   i(fields, "unreadByDriver"),
		CreatedAt:        ts(fields, "createdAt"),
		UpdatedAt:        ts(fields, "updatedAt"),
	}
}

// MessageRepository persists messages in the remote store.
type MessageRepository struct {
	client *docstore.Client
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(client *docstore.Client) *MessageRepository {
	return &MessageRepository{client: client}
}

var _ repository.MessageRepository = (*MessageRepository)(nil)

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return translate(r.client.Set(ctx, messagesCollection, msg.ID, map[string]any{
		"conversationId": msg.ConversationID,
		"senderId":       msg.SenderID,
		"senderType":     string(msg.SenderType),
		"content":        msg.Content,
		"sentAt":         msg.SentAt,
		"read":           msg.Read,
	}))
}

// GetByConversation lists a conversation's messages oldest first. The store
// has no query support, so this fetches the collection and filters here.
func (r *MessageRepository) GetByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	docs, err := r.client.List(ctx, messagesCollection)
	if err != nil {
		return nil, translate(err)
	}

	msgs := make([]*domain.Message, 0)
	for _, doc := range docs {
		if str(doc.Fields, "conversationId") != conversationID {
			continue
		}
		msgs = append(msgs, &domain.Message{
			ID:             doc.ID,
			ConversationID: conversationID,
			SenderID:       str(doc.Fields, "senderId"),
			SenderType:     domain.SenderType(str(doc.Fields, "senderType")),
			Content:        str(doc.Fields, "content"),
			SentAt:         ts(doc.Fields, "sentAt"),
			Read:           b(doc.Fields, "read"),
		})
	}

	sort.Slice(msgs, func(a, b int) bool {
		return msgs[a].SentAt.Before(msgs[b].SentAt)
	})
	return msgs, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) error {
	return translate(r.client.Patch(ctx, messagesCollection, id, map[string]any{"read": true}))
}
