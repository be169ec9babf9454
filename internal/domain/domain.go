package domain

import (
	"context"
	"time"
)

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// --- Model types ---

// Message is a persisted WhatsApp message row.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	FromNumber string    `db:"from_number" json:"from_number"`
	ToNumber   string    `db:"to_number" json:"to_number"`
	Body       string    `db:"body" json:"body"`
	Direction  string    `db:"direction" json:"direction"`
	MessageSid *string   `db:"message_sid" json:"message_sid"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Counterparty returns the phone on the other side of the conversation:
// the sender for inbound messages, the recipient for outbound ones.
// Assumes exactly one of from/to is the system's own number.
func (m *Message) Counterparty() string {
	if m.Direction == DirectionInbound {
		return m.FromNumber
	}
	return m.ToNumber
}

// Conversation is one row of the conversation summary: the counterparty
// phone plus that conversation's most recent message.
type Conversation struct {
	Phone         string    `db:"phone" json:"phone"`
	LastBody      string    `db:"last_body" json:"last_body"`
	LastDirection string    `db:"last_direction" json:"last_direction"`
	LastCreatedAt time.Time `db:"last_created_at" json:"last_created_at"`
}

// --- Interfaces ---

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	Insert(ctx context.Context, fromNumber, toNumber, body, direction string, messageSid *string) (*Message, error)
	ListAll(ctx context.Context) ([]Message, error)
	ListByPhone(ctx context.Context, phone string) ([]Message, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
}

// DeliveryService dispatches a message through the external carrier and
// returns the carrier's assigned message SID.
type DeliveryService interface {
	Send(ctx context.Context, from, to, body string) (string, error)
}

// AppService is the application layer contract; handlers route all operations through here.
type AppService interface {
	HandleInbound(ctx context.Context, in InboundMessage)
	SendMessage(ctx context.Context, to, body string) (string, error)
	ListMessages(ctx context.Context) ([]Message, error)
	ListConversationMessages(ctx context.Context, phone string) ([]Message, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
}

// InboundMessage carries the fields of a carrier webhook delivery.
type InboundMessage struct {
	From       string
	To         string
	Body       string
	MessageSid string
}
