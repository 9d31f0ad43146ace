package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"project_waflow/internal/entities"

	"github.com/google/uuid"
)

// FlowRepository keeps one JSON file per flow under <dataDir>/flows
type FlowRepository struct {
	mu    sync.RWMutex
	files *jsonDir
	now   func() time.Time
}

func NewFlowRepository(dataDir string) *FlowRepository {
	return &FlowRepository{
		files: newJSONDir(dataDir + "/flows"),
		now:   time.Now,
	}
}

func newFlowID(now time.Time) string {
	return fmt.Sprintf("flow_%d_%s", now.UnixMilli(), uuid.NewString()[:4])
}

func (r *FlowRepository) ListSummaries(ctx context.Context) ([]entities.FlowSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	out := make([]entities.FlowSummary, 0, len(flows))
	for _, f := range flows {
		out = append(out, f.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *FlowRepository) Get(ctx context.Context, id string) (*entities.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(id)
}

// GetActive returns the active flow or ErrFlowNotFound when none is active
func (r *FlowRepository) GetActive(ctx context.Context) (*entities.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		if f.IsActive {
			return f, nil
		}
	}
	return nil, entities.ErrFlowNotFound
}

// Save assigns an id and creation time on first save and always refreshes
// UpdatedAt. The active flag of an existing flow is owned by SetActive and is
// kept as stored.
func (r *FlowRepository) Save(ctx context.Context, flow *entities.Flow) (*entities.Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if flow.ID == "" {
		flow.ID = newFlowID(now)
		flow.CreatedAt = now
	} else if prev, err := r.load(flow.ID); err == nil {
		if flow.CreatedAt.IsZero() {
			flow.CreatedAt = prev.CreatedAt
		}
		flow.IsActive = prev.IsActive
	} else if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	flow.UpdatedAt = now

	if err := r.files.write(flow.ID, flow); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flow.ID, err)
	}
	return flow, nil
}

// Update applies fn to the stored flow and writes the result back while
// holding the write lock. fn cannot change the id, creation time or active flag.
func (r *FlowRepository) Update(ctx context.Context, id string, fn func(*entities.Flow) error) (*entities.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(id)
	if err != nil {
		return nil, err
	}
	flow := *stored
	if err := fn(&flow); err != nil {
		return nil, err
	}
	flow.ID = stored.ID
	flow.CreatedAt = stored.CreatedAt
	flow.IsActive = stored.IsActive
	if err := flow.Validate(); err != nil {
		return nil, err
	}
	flow.UpdatedAt = r.now().UTC()

	if err := r.files.write(flow.ID, &flow); err != nil {
		return nil, fmt.Errorf("update flow %s: %w", id, err)
	}
	return &flow, nil
}

func (r *FlowRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !safeName.MatchString(id) {
		return false, nil
	}
	return r.files.remove(id)
}

// SetActive makes id the only active flow
func (r *FlowRepository) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.load(id); err != nil {
		return err
	}

	flows, err := r.loadAll()
	if err != nil {
		return err
	}
	now := r.now().UTC()
	for _, f := range flows {
		active := f.ID == id
		if f.IsActive == active {
			continue
		}
		f.IsActive = active
		f.UpdatedAt = now
		if err := r.files.write(f.ID, f); err != nil {
			return fmt.Errorf("set active flow %s: %w", id, err)
		}
	}
	return nil
}

func (r *FlowRepository) load(id string) (*entities.Flow, error) {
	if !safeName.MatchString(id) {
		return nil, entities.ErrFlowNotFound
	}
	var f entities.Flow
	if err := r.files.read(id, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, entities.ErrFlowNotFound
		}
		return nil, fmt.Errorf("load flow %s: %w", id, err)
	}
	return &f, nil
}

func (r *FlowRepository) loadAll() ([]*entities.Flow, error) {
	names, err := r.files.names()
	if err != nil {
		return nil, err
	}
	flows := make([]*entities.Flow, 0, len(names))
	for _, name := range names {
		f, err := r.load(name)
		if err != nil {
			if errors.Is(err, entities.ErrFlowNotFound) {
				continue
			}
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}
