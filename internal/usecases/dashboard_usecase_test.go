package usecases

import (
	"context"
	"testing"
	"time"

	"project_waflow/internal/entities"
	"project_waflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	flows := repository.NewFlowRepository(dir)
	ledger := repository.NewConversationRepository(dir)
	audit := repository.NewFileAuditLog(dir)
	uc := NewDashboardUsecase(flows, ledger, audit)

	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &DashboardStats{}, stats)

	f, err := flows.Save(ctx, &entities.Flow{Name: "Welcome", Nodes: []entities.Node{}, Connections: []entities.Connection{}})
	require.NoError(t, err)
	require.NoError(t, flows.SetActive(ctx, f.ID))

	_, err = ledger.Append(ctx, "919876543210", entities.Message{Direction: entities.DirectionIncoming, Text: "hi"})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, "919876543210", entities.Message{Direction: entities.DirectionOutgoing, Text: "hello"})
	require.NoError(t, err)

	for _, status := range []string{entities.StatusSent, entities.StatusSent, entities.StatusFailed} {
		require.NoError(t, audit.Append(ctx, entities.AuditEntry{Timestamp: time.Now(), To: "919876543210", Status: status}))
	}

	stats, err = uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Flows)
	assert.Equal(t, f.ID, stats.ActiveFlowID)
	assert.Equal(t, "Welcome", stats.ActiveFlowName)
	assert.Equal(t, 1, stats.Conversations)
	assert.Equal(t, 2, stats.Messages)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.LoggedAttempts)

	logs, err := uc.MessageLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, entities.StatusFailed, logs[1].Status)
}
