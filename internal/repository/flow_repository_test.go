package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"project_waflow/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFlowJSON = `{
  "name": "Welcome",
  "nodes": [
    {"id": "n1", "type": "start", "position": {"x": 0, "y": 0}, "data": {}},
    {"id": "n2", "type": "message", "data": {"messageText": "Hi {{name}}"}},
    {"id": "n3", "type": "question", "data": {"questionText": "Interested?", "options": ["Yes", "No"]}}
  ],
  "connections": [
    {"id": "c1", "from": "n1", "to": "n2", "fromPort": "out"},
    {"id": "c2", "from": "n2", "to": "n3", "fromPort": "out"}
  ]
}`

func sampleFlow(t *testing.T) *entities.Flow {
	t.Helper()
	var f entities.Flow
	require.NoError(t, json.Unmarshal([]byte(sampleFlowJSON), &f))
	return &f
}

func TestFlowRepositorySaveAssignsIdentity(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	saved, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	assert.Regexp(t, `^flow_\d+_[0-9a-f]{4}$`, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)

	loaded, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", loaded.Name)
	require.Len(t, loaded.Nodes, 3)
	require.NotNil(t, loaded.Nodes[2].Question)
	assert.Equal(t, "Yes", loaded.Nodes[2].Question.Options[0].Text)

	created := loaded.CreatedAt
	repo.now = func() time.Time { return created.Add(time.Minute) }
	loaded.CreatedAt = time.Time{}
	again, err := repo.Save(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.True(t, again.CreatedAt.Equal(created))
	assert.True(t, again.UpdatedAt.After(created))
}

func TestFlowRepositoryRejectsInvalidFlow(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	f := sampleFlow(t)
	f.Nodes[1].Message.MessageText = ""

	_, err := repo.Save(context.Background(), f)
	require.ErrorIs(t, err, entities.ErrInvalidFlow)
}

func TestFlowRepositorySetActiveKeepsSingleActive(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	a, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	b, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)

	_, err = repo.GetActive(ctx)
	require.ErrorIs(t, err, entities.ErrFlowNotFound)

	require.NoError(t, repo.SetActive(ctx, a.ID))
	require.NoError(t, repo.SetActive(ctx, b.ID))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	summaries, err := repo.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	activeCount := 0
	for _, s := range summaries {
		if s.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	require.ErrorIs(t, repo.SetActive(ctx, "flow_missing"), entities.ErrFlowNotFound)
}

func TestFlowRepositoryDelete(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	saved, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)

	ok, err := repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Get(ctx, saved.ID)
	require.ErrorIs(t, err, entities.ErrFlowNotFound)

	_, err = repo.Get(ctx, "../etc/passwd")
	require.ErrorIs(t, err, entities.ErrFlowNotFound)
}

func TestFlowRepositorySaveKeepsStoredActiveFlag(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	a, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	b, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	require.NoError(t, repo.SetActive(ctx, a.ID))

	stale, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, stale.IsActive)

	require.NoError(t, repo.SetActive(ctx, b.ID))

	stale.Name = "Renamed"
	saved, err := repo.Save(ctx, stale)
	require.NoError(t, err)
	assert.False(t, saved.IsActive)

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, 1, countActive(t, repo))
}

func TestFlowRepositoryUpdate(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	saved, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	created := saved.CreatedAt
	repo.now = func() time.Time { return created.Add(time.Minute) }

	updated, err := repo.Update(ctx, saved.ID, func(f *entities.Flow) error {
		f.Name = "Renamed"
		f.ID = "flow_other"
		f.IsActive = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.CreatedAt.Equal(created))
	assert.True(t, updated.UpdatedAt.After(created))

	_, err = repo.Update(ctx, saved.ID, func(f *entities.Flow) error {
		f.Nodes[1].Message.MessageText = ""
		return nil
	})
	require.ErrorIs(t, err, entities.ErrInvalidFlow)

	_, err = repo.Update(ctx, "flow_missing", func(*entities.Flow) error { return nil })
	require.ErrorIs(t, err, entities.ErrFlowNotFound)

	loaded, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name)
}

func TestFlowRepositoryUpdateRacingSetActive(t *testing.T) {
	repo := NewFlowRepository(t.TempDir())
	ctx := context.Background()

	a, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	b, err := repo.Save(ctx, sampleFlow(t))
	require.NoError(t, err)
	require.NoError(t, repo.SetActive(ctx, a.ID))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Update(ctx, a.ID, func(f *entities.Flow) error {
				f.Description = fmt.Sprintf("edit %d", i)
				return nil
			})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			target := b.ID
			if i%2 == 0 {
				target = a.ID
			}
			assert.NoError(t, repo.SetActive(ctx, target))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countActive(t, repo))
}

func countActive(t *testing.T, repo *FlowRepository) int {
	t.Helper()
	summaries, err := repo.ListSummaries(context.Background())
	require.NoError(t, err)
	n := 0
	for _, s := range summaries {
		if s.IsActive {
			n++
		}
	}
	return n
}
