package usecases

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"project_waflow/internal/entities"
	"project_waflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlowUsecase(t *testing.T) *FlowUsecase {
	t.Helper()
	return NewFlowUsecase(repository.NewFlowRepository(t.TempDir()))
}

func welcomeInput(t *testing.T) FlowInput {
	t.Helper()
	var in FlowInput
	require.NoError(t, json.Unmarshal([]byte(welcomeFlow), &in))
	return in
}

func TestFlowUsecaseCreate(t *testing.T) {
	uc := newFlowUsecase(t)
	ctx := context.Background()

	_, err := uc.Create(ctx, FlowInput{Name: "  "})
	assert.ErrorIs(t, err, ErrMissingField)

	f, err := uc.Create(ctx, welcomeInput(t))
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.False(t, f.IsActive)
	assert.False(t, f.CreatedAt.IsZero())

	empty, err := uc.Create(ctx, FlowInput{Name: "Empty"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Nodes)
	assert.NotNil(t, empty.Connections)

	list, err := uc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFlowUsecaseCreateRejectsMismatchedNodeData(t *testing.T) {
	uc := newFlowUsecase(t)
	var in FlowInput
	require.NoError(t, json.Unmarshal([]byte(`{"name": "bad", "nodes": [{"id": "m", "type": "message", "data": {}}]}`), &in))
	_, err := uc.Create(context.Background(), in)
	assert.ErrorIs(t, err, entities.ErrInvalidFlow)
}

func TestFlowUsecaseUpdateMerges(t *testing.T) {
	uc := newFlowUsecase(t)
	ctx := context.Background()

	f, err := uc.Create(ctx, welcomeInput(t))
	require.NoError(t, err)
	require.NoError(t, uc.Activate(ctx, f.ID))

	updated, err := uc.Update(ctx, f.ID, json.RawMessage(`{"id": "hijack", "name": "Renamed", "isActive": false}`))
	require.NoError(t, err)
	assert.Equal(t, f.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.IsActive)
	assert.Len(t, updated.Nodes, 3, "fields absent from the patch are kept")
	assert.True(t, updated.CreatedAt.Equal(f.CreatedAt))

	_, err = uc.Update(ctx, "flow_missing", json.RawMessage(`{"name": "x"}`))
	assert.ErrorIs(t, err, entities.ErrFlowNotFound)

	_, err = uc.Update(ctx, f.ID, json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, entities.ErrInvalidFlow)
}

func TestFlowUsecaseActivateAndDelete(t *testing.T) {
	uc := newFlowUsecase(t)
	ctx := context.Background()

	a, err := uc.Create(ctx, FlowInput{Name: "A"})
	require.NoError(t, err)
	b, err := uc.Create(ctx, FlowInput{Name: "B"})
	require.NoError(t, err)

	require.NoError(t, uc.Activate(ctx, a.ID))
	require.NoError(t, uc.Activate(ctx, b.ID))

	gotA, err := uc.Get(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := uc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, gotA.IsActive)
	assert.True(t, gotB.IsActive)

	assert.ErrorIs(t, uc.Activate(ctx, "flow_missing"), entities.ErrFlowNotFound)

	require.NoError(t, uc.Delete(ctx, a.ID))
	assert.ErrorIs(t, uc.Delete(ctx, a.ID), entities.ErrFlowNotFound)
}

func TestFlowUsecaseTest(t *testing.T) {
	uc := newFlowUsecase(t)
	ctx := context.Background()

	f, err := uc.Create(ctx, welcomeInput(t))
	require.NoError(t, err)

	events, err := uc.Test(ctx, f.ID, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Hi there", events[0].Text)

	_, err = uc.Test(ctx, "flow_missing", "hi")
	assert.ErrorIs(t, err, entities.ErrFlowNotFound)
}

func TestFlowUsecaseUpdateConcurrentWithActivate(t *testing.T) {
	uc := newFlowUsecase(t)
	ctx := context.Background()

	a, err := uc.Create(ctx, FlowInput{Name: "A"})
	require.NoError(t, err)
	b, err := uc.Create(ctx, FlowInput{Name: "B"})
	require.NoError(t, err)
	require.NoError(t, uc.Activate(ctx, a.ID))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := uc.Update(ctx, a.ID, json.RawMessage(`{"description": "edited"}`))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, uc.Activate(ctx, b.ID))
		}()
	}
	wg.Wait()

	summaries, err := uc.List(ctx)
	require.NoError(t, err)
	var active []string
	for _, s := range summaries {
		if s.IsActive {
			active = append(active, s.ID)
		}
	}
	assert.Equal(t, []string{b.ID}, active)
}
