package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"project_waflow/internal/entities"
	"project_waflow/internal/interfaces"

	log "github.com/sirupsen/logrus"
)

// DefaultTestMessage is the input used when a dry run is requested without one
const DefaultTestMessage = "hi"

// FlowInput is the editable part of a flow
type FlowInput struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Nodes       []entities.Node       `json:"nodes"`
	Connections []entities.Connection `json:"connections"`
}

type FlowUsecase struct {
	store  interfaces.FlowStore
	logger *log.Entry
}

func NewFlowUsecase(store interfaces.FlowStore) *FlowUsecase {
	return &FlowUsecase{store: store, logger: log.WithField("module", "flows")}
}

func (u *FlowUsecase) List(ctx context.Context) ([]entities.FlowSummary, error) {
	return u.store.ListSummaries(ctx)
}

func (u *FlowUsecase) Get(ctx context.Context, id string) (*entities.Flow, error) {
	return u.store.Get(ctx, id)
}

// Create stores a new flow; new flows always start inactive
func (u *FlowUsecase) Create(ctx context.Context, in FlowInput) (*entities.Flow, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrMissingField)
	}
	flow := &entities.Flow{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Nodes:       in.Nodes,
		Connections: in.Connections,
	}
	if flow.Nodes == nil {
		flow.Nodes = []entities.Node{}
	}
	if flow.Connections == nil {
		flow.Connections = []entities.Connection{}
	}
	saved, err := u.store.Save(ctx, flow)
	if err != nil {
		return nil, err
	}
	u.logger.WithFields(log.Fields{"flow": saved.ID, "name": saved.Name}).Info("Flow created")
	return saved, nil
}

// Update merges the top-level fields present in patch into the stored flow.
// The id, creation time and active flag cannot be changed this way.
func (u *FlowUsecase) Update(ctx context.Context, id string, patch json.RawMessage) (*entities.Flow, error) {
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidFlow, err)
	}
	for _, locked := range []string{"id", "createdAt", "updatedAt", "isActive"} {
		delete(changes, locked)
	}

	return u.store.Update(ctx, id, func(flow *entities.Flow) error {
		current, err := json.Marshal(flow)
		if err != nil {
			return err
		}
		var merged map[string]json.RawMessage
		if err := json.Unmarshal(current, &merged); err != nil {
			return err
		}
		for k, v := range changes {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		var updated entities.Flow
		if err := json.Unmarshal(raw, &updated); err != nil {
			return fmt.Errorf("%w: %v", entities.ErrInvalidFlow, err)
		}
		*flow = updated
		return nil
	})
}

func (u *FlowUsecase) Delete(ctx context.Context, id string) error {
	ok, err := u.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return entities.ErrFlowNotFound
	}
	u.logger.WithField("flow", id).Info("Flow deleted")
	return nil
}

// Activate makes id the only flow answering inbound messages
func (u *FlowUsecase) Activate(ctx context.Context, id string) error {
	if err := u.store.SetActive(ctx, id); err != nil {
		return err
	}
	u.logger.WithField("flow", id).Info("Flow activated")
	return nil
}

// Test dry-runs the flow against message without sending anything
func (u *FlowUsecase) Test(ctx context.Context, id, message string) ([]entities.FlowEvent, error) {
	flow, err := u.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = DefaultTestMessage
	}
	return StartFlow(flow, message, "").Events, nil
}
