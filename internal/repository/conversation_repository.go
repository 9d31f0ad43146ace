package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"

	"github.com/google/uuid"
)

var errEmptyPhone = errors.New("phone number is empty")

// ConversationRepository keeps one JSON file per conversation key under
// <dataDir>/conversations. Read-modify-write cycles are serialized per key.
type ConversationRepository struct {
	files *jsonDir
	locks *infrastructure.KeyedMutex
	now   func() time.Time
}

func NewConversationRepository(dataDir string) *ConversationRepository {
	return &ConversationRepository{
		files: newJSONDir(dataDir + "/conversations"),
		locks: infrastructure.NewKeyedMutex(),
		now:   time.Now,
	}
}

func newMessageID(now time.Time) string {
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), uuid.NewString()[:4])
}

func (r *ConversationRepository) Get(ctx context.Context, phone string) (*entities.Conversation, error) {
	key := infrastructure.ConversationKey(phone)
	if key == "" {
		return nil, entities.ErrConversationNotFound
	}
	return r.load(key)
}

// CreateOrGet returns the conversation for phone, creating it on first use.
// Lead details are filled in when the stored record has none.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, phone, leadID, leadName string) (*entities.Conversation, error) {
	key := infrastructure.ConversationKey(phone)
	if key == "" {
		return nil, errEmptyPhone
	}
	var conv *entities.Conversation
	err := r.locks.WithLock(ctx, key, func(context.Context) error {
		var err error
		conv, err = r.createOrGetLocked(key, leadID, leadName)
		return err
	})
	return conv, err
}

// Append adds msg to the history of phone, assigning an id and timestamp when absent
func (r *ConversationRepository) Append(ctx context.Context, phone string, msg entities.Message) (entities.Message, error) {
	key := infrastructure.ConversationKey(phone)
	if key == "" {
		return msg, errEmptyPhone
	}
	err := r.locks.WithLock(ctx, key, func(context.Context) error {
		conv, err := r.createOrGetLocked(key, "", "")
		if err != nil {
			return err
		}
		now := r.now().UTC()
		if msg.ID == "" {
			msg.ID = newMessageID(now)
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		conv.Messages = append(conv.Messages, msg)
		conv.UpdatedAt = now
		return r.files.write(key, conv)
	})
	return msg, err
}

// UpdateStatus sets the status of the message with the given provider id.
// Provider callbacks carry the number without a plus sign, so both spellings are tried.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, phone, waMessageID, status string) (bool, error) {
	if waMessageID == "" {
		return false, nil
	}
	key := infrastructure.ConversationKey(phone)
	if key == "" {
		return false, nil
	}
	candidates := []string{key}
	if strings.HasPrefix(key, "+") {
		candidates = append(candidates, strings.TrimPrefix(key, "+"))
	} else {
		candidates = append(candidates, "+"+key)
	}

	for _, k := range candidates {
		var updated bool
		err := r.locks.WithLock(ctx, k, func(context.Context) error {
			conv, err := r.load(k)
			if err != nil {
				if errors.Is(err, entities.ErrConversationNotFound) {
					return nil
				}
				return err
			}
			for i := range conv.Messages {
				if conv.Messages[i].WAMessageID == waMessageID {
					conv.Messages[i].Status = status
					conv.UpdatedAt = r.now().UTC()
					updated = true
					return r.files.write(k, conv)
				}
			}
			return nil
		})
		if err != nil || updated {
			return updated, err
		}
	}
	return false, nil
}

// SetFlowState replaces the live flow cursor; nil clears it
func (r *ConversationRepository) SetFlowState(ctx context.Context, phone string, state *entities.FlowState) error {
	key := infrastructure.ConversationKey(phone)
	if key == "" {
		return errEmptyPhone
	}
	return r.locks.WithLock(ctx, key, func(context.Context) error {
		conv, err := r.createOrGetLocked(key, "", "")
		if err != nil {
			return err
		}
		conv.FlowState = state
		conv.UpdatedAt = r.now().UTC()
		return r.files.write(key, conv)
	})
}

// List returns one summary per conversation, most recent activity first
func (r *ConversationRepository) List(ctx context.Context) ([]entities.ConversationSummary, error) {
	convs, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	out := make([]entities.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *ConversationRepository) FindByLead(ctx context.Context, leadID string) (*entities.Conversation, error) {
	if leadID == "" {
		return nil, entities.ErrConversationNotFound
	}
	convs, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.LeadID == leadID {
			return c, nil
		}
	}
	return nil, entities.ErrConversationNotFound
}

func (r *ConversationRepository) createOrGetLocked(key, leadID, leadName string) (*entities.Conversation, error) {
	conv, err := r.load(key)
	if err == nil {
		changed := false
		if conv.LeadID == "" && leadID != "" {
			conv.LeadID = leadID
			changed = true
		}
		if conv.LeadName == "" && leadName != "" {
			conv.LeadName = leadName
			changed = true
		}
		if changed {
			conv.UpdatedAt = r.now().UTC()
			if err := r.files.write(key, conv); err != nil {
				return nil, err
			}
		}
		return conv, nil
	}
	if !errors.Is(err, entities.ErrConversationNotFound) {
		return nil, err
	}

	now := r.now().UTC()
	conv = &entities.Conversation{
		Phone:     key,
		LeadID:    leadID,
		LeadName:  leadName,
		Messages:  []entities.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.files.write(key, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepository) load(key string) (*entities.Conversation, error) {
	var conv entities.Conversation
	if err := r.files.read(key, &conv); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, entities.ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation %s: %w", key, err)
	}
	if conv.Messages == nil {
		conv.Messages = []entities.Message{}
	}
	return &conv, nil
}

func (r *ConversationRepository) loadAll() ([]*entities.Conversation, error) {
	names, err := r.files.names()
	if err != nil {
		return nil, err
	}
	convs := make([]*entities.Conversation, 0, len(names))
	for _, name := range names {
		c, err := r.load(name)
		if err != nil {
			if errors.Is(err, entities.ErrConversationNotFound) {
				continue
			}
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}
