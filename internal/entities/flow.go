package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrInvalidFlow  = errors.New("invalid flow")
)

type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeMessage   NodeType = "message"
	NodeQuestion  NodeType = "question"
	NodeAction    NodeType = "action"
	NodeDelay     NodeType = "delay"
	NodeCondition NodeType = "condition"
)

// Output ports used by the interpreter when following connections
const (
	PortOut   = "out"
	PortTrue  = "true"
	PortFalse = "false"
)

// Flow is a user-authored automation graph
type Flow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description,omitempty"`
	IsActive    bool         `json:"isActive"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections" validate:"dive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// FlowSummary is the list view of a stored flow
type FlowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Connection struct {
	ID       string `json:"id,omitempty"`
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	FromPort string `json:"fromPort,omitempty"`
	ToPort   string `json:"toPort,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node holds exactly one typed payload matching Type. Nodes of a type this
// package does not know keep their data verbatim in Raw.
type Node struct {
	ID       string
	Type     NodeType
	Position *Position

	Start     *StartData
	Message   *MessageData
	Question  *QuestionData
	Action    *ActionData
	Delay     *DelayData
	Condition *ConditionData
	Raw       json.RawMessage
}

type StartData struct {
	Label          string `json:"label,omitempty"`
	TriggerKeyword string `json:"triggerKeyword,omitempty"`
}

type MessageData struct {
	Label       string `json:"label,omitempty"`
	MessageText string `json:"messageText" validate:"required"`
	MessageType string `json:"messageType,omitempty"`
}

type QuestionData struct {
	Label        string           `json:"label,omitempty"`
	QuestionText string           `json:"questionText" validate:"required"`
	ReplyType    string           `json:"replyType,omitempty" validate:"omitempty,oneof=buttons list"`
	Options      []QuestionOption `json:"options" validate:"dive"`
}

// QuestionOption is one selectable answer. A bare JSON string is accepted
// and used as id, text and value.
type QuestionOption struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text" validate:"required"`
	Value string `json:"value,omitempty"`
}

func (o *QuestionOption) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = QuestionOption{ID: s, Text: s, Value: s}
		return nil
	}
	type plain QuestionOption
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = QuestionOption(p)
	return nil
}

// MarshalJSON writes options that came in as bare strings back as strings
func (o QuestionOption) MarshalJSON() ([]byte, error) {
	if o.ID == o.Text && o.Value == o.Text {
		return json.Marshal(o.Text)
	}
	type plain QuestionOption
	return json.Marshal(plain(o))
}

// Answer returns the value recorded when this option is chosen
func (o QuestionOption) Answer() string {
	if o.Value != "" {
		return o.Value
	}
	return o.Text
}

// Matches reports whether a user reply selects this option
func (o QuestionOption) Matches(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	return strings.EqualFold(o.Text, input) || (o.Value != "" && o.Value == input) || (o.ID != "" && o.ID == input)
}

type ActionData struct {
	Label      string         `json:"label,omitempty"`
	ActionType string         `json:"actionType" validate:"required"`
	Params     map[string]any `json:"params,omitempty"`
}

type DelayData struct {
	Label    string `json:"label,omitempty"`
	Duration int    `json:"duration" validate:"gte=0"`
	Unit     string `json:"unit,omitempty" validate:"omitempty,oneof=seconds minutes hours"`
}

// Interval converts the configured duration to a time.Duration (unit defaults to seconds)
func (d DelayData) Interval() time.Duration {
	unit := time.Second
	switch d.Unit {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	}
	return time.Duration(d.Duration) * unit
}

type ConditionData struct {
	Label    string `json:"label,omitempty"`
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty" validate:"omitempty,oneof=equals contains not_equals"`
	Value    string `json:"value,omitempty"`
}

// HasPredicate is false for a bare condition node, which always routes to the true port
func (c ConditionData) HasPredicate() bool {
	return c.Field != "" || c.Value != ""
}

// Evaluate compares actual against the configured value, case-insensitively
func (c ConditionData) Evaluate(actual string) bool {
	a, v := strings.ToLower(actual), strings.ToLower(c.Value)
	switch c.Operator {
	case "contains":
		return strings.Contains(a, v)
	case "not_equals":
		return a != v
	default:
		return a == v
	}
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position *Position       `json:"position,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = Node{ID: raw.ID, Type: raw.Type, Position: raw.Position}

	data := raw.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}

	var target any
	switch raw.Type {
	case NodeStart:
		n.Start = &StartData{}
		target = n.Start
	case NodeMessage:
		n.Message = &MessageData{}
		target = n.Message
	case NodeQuestion:
		n.Question = &QuestionData{}
		target = n.Question
	case NodeAction:
		n.Action = &ActionData{}
		target = n.Action
	case NodeDelay:
		n.Delay = &DelayData{Duration: 1, Unit: "seconds"}
		target = n.Delay
	case NodeCondition:
		n.Condition = &ConditionData{}
		target = n.Condition
	default:
		n.Raw = append(json.RawMessage(nil), raw.Data...)
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: node %q: data does not match type %q: %v", ErrInvalidFlow, raw.ID, raw.Type, err)
	}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{ID: n.ID, Type: n.Type, Position: n.Position, Data: n.Raw}
	if p := n.payload(); p != nil && !isNilPointer(p) {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out.Data = data
	}
	return json.Marshal(out)
}

// payload returns the typed data for known node types, nil otherwise
func (n Node) payload() any {
	switch n.Type {
	case NodeStart:
		return n.Start
	case NodeMessage:
		return n.Message
	case NodeQuestion:
		return n.Question
	case NodeAction:
		return n.Action
	case NodeDelay:
		return n.Delay
	case NodeCondition:
		return n.Condition
	}
	return nil
}

var validate = validator.New()

// Validate rejects a flow whose structure or node data does not match its declared types
func (f *Flow) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}

	seen := make(map[string]bool, len(f.Nodes))
	starts := 0
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidFlow, i)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidFlow, n.ID)
		}
		seen[n.ID] = true

		if n.Type == NodeStart {
			starts++
		}

		p := n.payload()
		if p == nil {
			continue
		}
		if isNilPointer(p) {
			return fmt.Errorf("%w: node %q of type %q has no data", ErrInvalidFlow, n.ID, n.Type)
		}
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrInvalidFlow, n.ID, err)
		}
	}

	if starts > 1 {
		return fmt.Errorf("%w: only one start node is allowed", ErrInvalidFlow)
	}
	return nil
}

func isNilPointer(p any) bool {
	switch v := p.(type) {
	case *StartData:
		return v == nil
	case *MessageData:
		return v == nil
	case *QuestionData:
		return v == nil
	case *ActionData:
		return v == nil
	case *DelayData:
		return v == nil
	case *ConditionData:
		return v == nil
	}
	return false
}

// Summary returns the list view of the flow
func (f *Flow) Summary() FlowSummary {
	return FlowSummary{ID: f.ID, Name: f.Name, IsActive: f.IsActive, UpdatedAt: f.UpdatedAt}
}

// StartNode returns the first start node, or nil
func (f *Flow) StartNode() *Node {
	for i := range f.Nodes {
		if f.Nodes[i].Type == NodeStart {
			return &f.Nodes[i]
		}
	}
	return nil
}

// NodeByID returns the node with the given id, or nil
func (f *Flow) NodeByID(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// Next follows the first connection leaving from on the given port
func (f *Flow) Next(from, port string) (string, bool) {
	for _, c := range f.Connections {
		if c.From == from && c.FromPort == port {
			return c.To, true
		}
	}
	return "", false
}

// FirstOut follows the first connection leaving from, whatever its port
func (f *Flow) FirstOut(from string) (string, bool) {
	for _, c := range f.Connections {
		if c.From == from {
			return c.To, true
		}
	}
	return "", false
}
