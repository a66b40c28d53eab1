package repository

import (
	"context"

	"courier/internal/domain"
)

// ConversationRepository defines the persistence operations for
// conversations. Conversations are never deleted.
type ConversationRepository interface {
	// Create persists a new conversation.
	Create(ctx context.Context, conv *domain.Conversation) error

	// GetByID retrieves a conversation by its composite-derived ID.
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)

	// GetAll retrieves every conversation; callers filter by participant.
	GetAll(ctx context.Context) ([]*domain.Conversation, error)

	// Patch writes only the named field paths.
	Patch(ctx context.Context, id string, fields map[string]any) error
}

// MessageRepository defines the persistence operations for messages.
// Messages are append-only.
type MessageRepository interface {
	// Create appends a new message.
	Create(ctx context.Context, msg *domain.Message) error

	// GetByConversation retrieves all messages of one conversation, oldest
	// first.
	GetByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// MarkRead flags a message as read.
	MarkRead(ctx context.Context, id string) error
}
