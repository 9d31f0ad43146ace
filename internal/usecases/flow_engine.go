package usecases

import (
	"strings"
	"time"

	"project_waflow/internal/entities"
)

// MaxFlowSteps bounds the node visits of a single run
const MaxFlowSteps = 20

// RunResult is the outcome of walking a flow until it halts
type RunResult struct {
	Events        []entities.FlowEvent
	CollectedData map[string]any
	// WaitingNodeID is the question node the run paused on, empty when the run ended
	WaitingNodeID string
	Steps         int
	// CutOff is set when the step ceiling stopped the run
	CutOff bool
}

// NextState returns the cursor to persist after a live run, nil when the run is over
func (r RunResult) NextState(flowID string, startedAt time.Time) *entities.FlowState {
	if r.WaitingNodeID == "" {
		return nil
	}
	return &entities.FlowState{
		FlowID:        flowID,
		CurrentNodeID: r.WaitingNodeID,
		CollectedData: r.CollectedData,
		StartedAt:     startedAt,
	}
}

// StartFlow walks flow from its start node. It backs both the dry-run test
// endpoint and the first run of a live conversation.
func StartFlow(flow *entities.Flow, input, contactName string) RunResult {
	res := RunResult{Events: []entities.FlowEvent{}, CollectedData: map[string]any{}}
	start := flow.StartNode()
	if start == nil {
		return res
	}
	next, ok := flow.FirstOut(start.ID)
	if !ok {
		return res
	}
	return walk(flow, next, res.CollectedData, input, contactName)
}

// Triggered reports whether input starts flow: the start node has no
// keyword or the keyword appears in input, ignoring case
func Triggered(flow *entities.Flow, input string) bool {
	start := flow.StartNode()
	if start == nil {
		return false
	}
	keyword := ""
	if start.Start != nil {
		keyword = strings.ToLower(strings.TrimSpace(start.Start.TriggerKeyword))
	}
	return keyword == "" || strings.Contains(strings.ToLower(input), keyword)
}

// ResumeFlow continues a run paused on a question with the user's reply.
// A matching option stores its answer under the question label and selects
// the connection named after the option id, ending the run when there is none.
// Any other reply follows the first connection leaving the question.
func ResumeFlow(flow *entities.Flow, state *entities.FlowState, in entities.InboundMessage, contactName string) RunResult {
	collected := make(map[string]any, len(state.CollectedData)+1)
	for k, v := range state.CollectedData {
		collected[k] = v
	}
	res := RunResult{Events: []entities.FlowEvent{}, CollectedData: collected}

	node := flow.NodeByID(state.CurrentNodeID)
	if node == nil || node.Type != entities.NodeQuestion || node.Question == nil {
		return res
	}
	q := node.Question

	key := q.Label
	if key == "" {
		key = node.ID
	}

	var next string
	var found bool
	if opt, ok := matchOption(q.Options, in); ok {
		collected[key] = opt.Answer()
		if opt.ID != "" {
			next, found = flow.Next(node.ID, opt.ID)
		} else {
			next, found = flow.FirstOut(node.ID)
		}
	} else {
		if len(q.Options) == 0 && strings.TrimSpace(in.Text) != "" {
			// free-text questions keep the raw reply
			collected[key] = strings.TrimSpace(in.Text)
		}
		next, found = flow.FirstOut(node.ID)
	}
	if !found {
		return res
	}
	return walk(flow, next, collected, in.Text, contactName)
}

func matchOption(options []entities.QuestionOption, in entities.InboundMessage) (entities.QuestionOption, bool) {
	for _, candidate := range []string{in.ReplyID, in.Text} {
		if candidate == "" {
			continue
		}
		for _, opt := range options {
			if opt.Matches(candidate) {
				return opt, true
			}
		}
	}
	return entities.QuestionOption{}, false
}

// walk visits nodes from current, producing events until a question, a dead
// end, an unknown node type or the step ceiling stops it
func walk(flow *entities.Flow, current string, collected map[string]any, input, contactName string) RunResult {
	res := RunResult{Events: []entities.FlowEvent{}, CollectedData: collected}

	for current != "" {
		if res.Steps >= MaxFlowSteps {
			res.CutOff = true
			break
		}
		res.Steps++

		node := flow.NodeByID(current)
		if node == nil {
			break
		}

		next := ""
		switch node.Type {
		case entities.NodeMessage:
			if node.Message == nil {
				return res
			}
			res.Events = append(res.Events, entities.FlowEvent{
				Type:   entities.EventMessage,
				NodeID: node.ID,
				Text:   Interpolate(node.Message.MessageText, collected, contactName),
			})
			next, _ = flow.Next(node.ID, entities.PortOut)

		case entities.NodeQuestion:
			if node.Question == nil {
				return res
			}
			res.Events = append(res.Events, entities.FlowEvent{
				Type:            entities.EventQuestion,
				NodeID:          node.ID,
				Text:            Interpolate(node.Question.QuestionText, collected, contactName),
				Options:         node.Question.Options,
				ReplyType:       node.Question.ReplyType,
				WaitingForInput: true,
			})
			res.WaitingNodeID = node.ID
			return res

		case entities.NodeAction:
			if node.Action == nil {
				return res
			}
			res.Events = append(res.Events, entities.FlowEvent{
				Type:       entities.EventAction,
				NodeID:     node.ID,
				ActionType: node.Action.ActionType,
				Label:      node.Action.Label,
				Params:     node.Action.Params,
			})
			next, _ = flow.Next(node.ID, entities.PortOut)

		case entities.NodeDelay:
			if node.Delay == nil {
				return res
			}
			res.Events = append(res.Events, entities.FlowEvent{
				Type:     entities.EventDelay,
				NodeID:   node.ID,
				Duration: node.Delay.Duration,
				Unit:     delayUnit(node.Delay.Unit),
			})
			next, _ = flow.Next(node.ID, entities.PortOut)

		case entities.NodeCondition:
			next, _ = flow.Next(node.ID, conditionPort(node.Condition, collected, input))

		default:
			return res
		}
		current = next
	}
	return res
}

// conditionPort picks the branch of a condition node. Without a predicate
// the true branch is always taken.
func conditionPort(c *entities.ConditionData, collected map[string]any, input string) string {
	if c == nil || !c.HasPredicate() {
		return entities.PortTrue
	}
	actual := input
	if v, ok := collected[c.Field]; ok && c.Field != "" {
		actual = stringify(v)
	}
	if c.Evaluate(actual) {
		return entities.PortTrue
	}
	return entities.PortFalse
}

func delayUnit(u string) string {
	if u == "" {
		return "seconds"
	}
	return u
}
