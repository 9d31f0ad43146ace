package usecases

import (
	"context"
	"errors"

	"project_waflow/internal/entities"
	"project_waflow/internal/interfaces"
)

// DashboardStats summarizes the state of the service for the operator UI
type DashboardStats struct {
	Flows          int    `json:"flows"`
	ActiveFlowID   string `json:"activeFlowId,omitempty"`
	ActiveFlowName string `json:"activeFlowName,omitempty"`
	Conversations  int    `json:"conversations"`
	Messages       int    `json:"messages"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
	LoggedAttempts int    `json:"loggedAttempts"`
}

type DashboardUsecase struct {
	flows  interfaces.FlowStore
	ledger interfaces.ConversationLedger
	audit  interfaces.AuditLog
}

func NewDashboardUsecase(flows interfaces.FlowStore, ledger interfaces.ConversationLedger, audit interfaces.AuditLog) *DashboardUsecase {
	return &DashboardUsecase{flows: flows, ledger: ledger, audit: audit}
}

func (u *DashboardUsecase) Stats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	flows, err := u.flows.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	stats.Flows = len(flows)

	active, err := u.flows.GetActive(ctx)
	switch {
	case err == nil:
		stats.ActiveFlowID = active.ID
		stats.ActiveFlowName = active.Name
	case !errors.Is(err, entities.ErrFlowNotFound):
		return nil, err
	}

	convs, err := u.ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	stats.Conversations = len(convs)
	for _, c := range convs {
		stats.Messages += c.MessageCount
	}

	entries, err := u.audit.Tail(ctx, entities.MaxAuditEntries)
	if err != nil {
		return nil, err
	}
	stats.LoggedAttempts = len(entries)
	for _, e := range entries {
		switch e.Status {
		case entities.StatusSent:
			stats.Sent++
		case entities.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// MessageLog returns the most recent delivery attempts, oldest first
func (u *DashboardUsecase) MessageLog(ctx context.Context, n int) ([]entities.AuditEntry, error) {
	return u.audit.Tail(ctx, n)
}
