package interfaces

import (
	"context"

	"project_waflow/internal/entities"
)

// FlowStore persists flow graphs
type FlowStore interface {
	ListSummaries(ctx context.Context) ([]entities.FlowSummary, error)
	Get(ctx context.Context, id string) (*entities.Flow, error)
	GetActive(ctx context.Context) (*entities.Flow, error)
	Save(ctx context.Context, flow *entities.Flow) (*entities.Flow, error)
	Update(ctx context.Context, id string, fn func(*entities.Flow) error) (*entities.Flow, error)
	Delete(ctx context.Context, id string) (bool, error)
	SetActive(ctx context.Context, id string) error
}

// ConversationLedger is the per-contact message history
type ConversationLedger interface {
	Get(ctx context.Context, phone string) (*entities.Conversation, error)
	CreateOrGet(ctx context.Context, phone, leadID, leadName string) (*entities.Conversation, error)
	Append(ctx context.Context, phone string, msg entities.Message) (entities.Message, error)
	UpdateStatus(ctx context.Context, phone, waMessageID, status string) (bool, error)
	SetFlowState(ctx context.Context, phone string, state *entities.FlowState) error
	List(ctx context.Context) ([]entities.ConversationSummary, error)
	FindByLead(ctx context.Context, leadID string) (*entities.Conversation, error)
}

// AuditLog is the bounded global log of delivery attempts
type AuditLog interface {
	Append(ctx context.Context, entry entities.AuditEntry) error
	Tail(ctx context.Context, n int) ([]entities.AuditEntry, error)
}

// Messenger delivers outbound messages to one recipient
type Messenger interface {
	SendText(ctx context.Context, req entities.OutboundText) (*entities.DeliveryResult, error)
	SendQuestion(ctx context.Context, req entities.OutboundQuestion) (*entities.DeliveryResult, error)
	SendTemplate(ctx context.Context, req entities.OutboundTemplate) (*entities.DeliveryResult, error)
}

// ActionHandler executes action nodes reached during a live flow run
type ActionHandler interface {
	HandleAction(ctx context.Context, phone string, event entities.FlowEvent) error
}

// InboundPublisher hands webhook messages to the asynchronous flow driver
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg entities.InboundMessage) error
}
