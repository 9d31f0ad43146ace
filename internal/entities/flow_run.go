package entities

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMessage  EventType = "message"
	EventQuestion EventType = "question"
	EventAction   EventType = "action"
	EventDelay    EventType = "delay"
)

// FlowEvent is one response produced while walking a flow
type FlowEvent struct {
	Type            EventType        `json:"type"`
	NodeID          string           `json:"nodeId,omitempty"`
	Text            string           `json:"text,omitempty"`
	Options         []QuestionOption `json:"options,omitempty"`
	ReplyType       string           `json:"replyType,omitempty"`
	WaitingForInput bool             `json:"waitingForInput,omitempty"`
	ActionType      string           `json:"actionType,omitempty"`
	Label           string           `json:"label,omitempty"`
	Params          map[string]any   `json:"params,omitempty"`
	Duration        int              `json:"duration,omitempty"`
	Unit            string           `json:"unit,omitempty"`
}

// MarshalJSON always includes the options of a question and the duration of a delay
func (e FlowEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventQuestion:
		opts := e.Options
		if opts == nil {
			opts = []QuestionOption{}
		}
		return json.Marshal(struct {
			Type            EventType        `json:"type"`
			NodeID          string           `json:"nodeId,omitempty"`
			Text            string           `json:"text"`
			Options         []QuestionOption `json:"options"`
			ReplyType       string           `json:"replyType,omitempty"`
			WaitingForInput bool             `json:"waitingForInput"`
		}{e.Type, e.NodeID, e.Text, opts, e.ReplyType, e.WaitingForInput})
	case EventDelay:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			NodeID   string    `json:"nodeId,omitempty"`
			Duration int       `json:"duration"`
			Unit     string    `json:"unit"`
		}{e.Type, e.NodeID, e.Duration, e.Unit})
	}
	type plain FlowEvent
	return json.Marshal(plain(e))
}

// FlowState is the per-conversation cursor of a live flow run.
// CurrentNodeID points at the question node awaiting a reply.
type FlowState struct {
	FlowID        string         `json:"flowId"`
	CurrentNodeID string         `json:"currentNodeId"`
	CollectedData map[string]any `json:"collectedData"`
	StartedAt     time.Time      `json:"startedAt"`
}

// Waiting reports whether the run is paused on a question
func (s *FlowState) Waiting() bool {
	return s != nil && s.CurrentNodeID != ""
}
