package domain

import (
	"fmt"
	"time"
)

// SenderType identifies which party authored a message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "customer"
	SenderTypeDriver   SenderType = "driver"
)

// Conversation is the chat thread between the two parties of an order.
// Created lazily the first time a driver accepts the order; never deleted.
type Conversation struct {
	ID         string
	OrderID    string
	CustomerID string
	DriverID   string

	// Denormalized display names so list screens need no extra reads.
	CustomerName string
	DriverName   string

	LastMessage      string
	LastMessageAt    time.Time
	UnreadByCustomer int
	UnreadByDriver   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConversationID derives the deterministic identity for the
// (order, customer, driver) triple, making conversation creation idempotent.
func ConversationID(orderID, customerID, driverID string) string {
	return fmt.Sprintf("%s_%s_%s", orderID, customerID, driverID)
}

// Message is one append-only chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderType     SenderType
	Content        string
	SentAt         time.Time
	Read           bool
}
