package entities

import (
	"errors"
	"time"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Delivery states, the provider reports delivered/read through status callbacks
const (
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusSimulated = "simulated"
)

// Message is one entry of a conversation history
type Message struct {
	ID          string    `json:"id"`
	Direction   Direction `json:"direction"`
	Type        string    `json:"type"`
	Text        string    `json:"text"`
	Status      string    `json:"status,omitempty"`
	WAMessageID string    `json:"waMessageId,omitempty"`
	ContactName string    `json:"contactName,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Conversation is the ordered message history of one normalized phone number
type Conversation struct {
	Phone     string     `json:"phone"`
	LeadID    string     `json:"leadId,omitempty"`
	LeadName  string     `json:"leadName,omitempty"`
	FlowState *FlowState `json:"flowState"`
	Messages  []Message  `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ConversationSummary is the list view of a conversation
type ConversationSummary struct {
	Phone         string    `json:"phone"`
	LeadID        string    `json:"leadId,omitempty"`
	LeadName      string    `json:"leadName,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	MessageCount  int       `json:"messageCount"`
}

// Summary builds the list view, last activity falls back to creation time
func (c *Conversation) Summary() ConversationSummary {
	s := ConversationSummary{
		Phone:         c.Phone,
		LeadID:        c.LeadID,
		LeadName:      c.LeadName,
		LastMessageAt: c.CreatedAt,
		MessageCount:  len(c.Messages),
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		s.LastMessage = last.Text
		if s.LastMessage == "" {
			s.LastMessage = "[media]"
		}
		s.LastMessageAt = last.Timestamp
	}
	return s
}

// InboundMessage is a provider-delivered user message after webhook parsing
type InboundMessage struct {
	From        string `json:"from"`
	ContactName string `json:"contactName"`
	Type        string `json:"type"`
	Text        string `json:"text"`
	ReplyID     string `json:"replyId,omitempty"`
	WAMessageID string `json:"waMessageId"`
}

// StatusUpdate is a provider delivery-status callback
type StatusUpdate struct {
	RecipientID string `json:"recipientId"`
	WAMessageID string `json:"waMessageId"`
	Status      string `json:"status"`
}
