package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/interfaces"

	log "github.com/sirupsen/logrus"
)

var ErrMissingField = errors.New("missing required field")

// SendRequest is an operator-initiated text message
type SendRequest struct {
	Phone    string `json:"phone"`
	Text     string `json:"text"`
	LeadID   string `json:"leadId,omitempty"`
	LeadName string `json:"leadName,omitempty"`
	CSMName  string `json:"csmName,omitempty"`
}

// TemplateRequest is an operator-initiated template message
type TemplateRequest struct {
	Phone        string   `json:"phone"`
	TemplateName string   `json:"templateName"`
	Params       []string `json:"templateParams,omitempty"`
	Language     string   `json:"language,omitempty"`
	LeadID       string   `json:"leadId,omitempty"`
	LeadName     string   `json:"leadName,omitempty"`
	CSMName      string   `json:"csmName,omitempty"`
}

// SendResult is the outcome reported back to the operator
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
	Note      string `json:"note,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessageService ties delivery to the conversation ledger and drives live flows
type MessageService struct {
	messenger interfaces.Messenger
	ledger    interfaces.ConversationLedger
	flows     interfaces.FlowStore
	actions   interfaces.ActionHandler
	publisher interfaces.InboundPublisher
	flowLocks *infrastructure.KeyedMutex
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *log.Entry
}

// NewMessageService wires the service. A nil publisher runs flows inline
// during ReceiveInbound, a nil action handler logs actions.
func NewMessageService(messenger interfaces.Messenger, ledger interfaces.ConversationLedger, flows interfaces.FlowStore, actions interfaces.ActionHandler, publisher interfaces.InboundPublisher, maxDelay time.Duration) *MessageService {
	logger := log.WithField("module", "messages")
	if actions == nil {
		actions = NewLoggingActionHandler()
	}
	return &MessageService{
		messenger: messenger,
		ledger:    ledger,
		flows:     flows,
		actions:   actions,
		publisher: publisher,
		flowLocks: infrastructure.NewKeyedMutex(),
		maxDelay:  maxDelay,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendText delivers an operator message and records it in the contact's history
func (s *MessageService) SendText(ctx context.Context, req SendRequest) (*SendResult, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: phone and text required", ErrMissingField)
	}

	res, sendErr := s.messenger.SendText(ctx, entities.OutboundText{
		To:       req.Phone,
		Text:     req.Text,
		LeadName: req.LeadName,
		CSMName:  req.CSMName,
	})
	return s.finishSend(ctx, req.Phone, req.LeadID, req.LeadName, "text", req.Text, res, sendErr)
}

// SendTemplate delivers a provider template and records it as "[Template: name]"
func (s *MessageService) SendTemplate(ctx context.Context, req TemplateRequest) (*SendResult, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.TemplateName = strings.TrimSpace(req.TemplateName)
	if req.Phone == "" || req.TemplateName == "" {
		return nil, fmt.Errorf("%w: phone and templateName required", ErrMissingField)
	}

	res, sendErr := s.messenger.SendTemplate(ctx, entities.OutboundTemplate{
		To:       req.Phone,
		Name:     req.TemplateName,
		Language: req.Language,
		Params:   req.Params,
		LeadName: req.LeadName,
		CSMName:  req.CSMName,
	})
	return s.finishSend(ctx, req.Phone, req.LeadID, req.LeadName, "template", entities.TemplateLabel(req.TemplateName), res, sendErr)
}

// finishSend writes the ledger entry for an operator send and builds its result.
// Invalid recipients are rejected before anything is written to the ledger.
func (s *MessageService) finishSend(ctx context.Context, phone, leadID, leadName, msgType, text string, res *entities.DeliveryResult, sendErr error) (*SendResult, error) {
	if errors.Is(sendErr, infrastructure.ErrInvalidRecipient) {
		return nil, sendErr
	}

	if _, err := s.ledger.CreateOrGet(ctx, phone, leadID, leadName); err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to open conversation")
	}
	s.recordOutgoing(ctx, phone, msgType, text, res, sendErr)

	out := &SendResult{Success: sendErr == nil}
	if res != nil {
		out.MessageID = res.MessageID
		if res.Simulated {
			out.Simulated = true
			out.Note = res.Error
		}
	}
	if sendErr != nil {
		out.Error = sendErr.Error()
		return out, sendErr
	}
	return out, nil
}

// recordOutgoing appends one outgoing entry for a delivery; ledger failures are only logged
func (s *MessageService) recordOutgoing(ctx context.Context, phone, msgType, text string, res *entities.DeliveryResult, sendErr error) {
	msg := entities.Message{
		Direction: entities.DirectionOutgoing,
		Type:      msgType,
		Text:      text,
		Status:    entities.StatusSent,
	}
	switch {
	case sendErr != nil:
		msg.Status = entities.StatusFailed
	case res != nil && res.Simulated:
		msg.Status = entities.StatusSimulated
	}
	if res != nil {
		msg.WAMessageID = res.MessageID
	}
	if _, err := s.ledger.Append(ctx, phone, msg); err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to record outgoing message")
	}
}

// ReceiveInbound records a user message and hands it to the flow driver
func (s *MessageService) ReceiveInbound(ctx context.Context, in entities.InboundMessage) error {
	if strings.TrimSpace(in.From) == "" {
		return fmt.Errorf("%w: from", ErrMissingField)
	}
	msgType := in.Type
	if msgType == "" {
		msgType = "text"
	}
	if _, err := s.ledger.Append(ctx, in.From, entities.Message{
		Direction:   entities.DirectionIncoming,
		Type:        msgType,
		Text:        in.Text,
		WAMessageID: in.WAMessageID,
		ContactName: in.ContactName,
	}); err != nil {
		return fmt.Errorf("record incoming message: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishInbound(ctx, in); err != nil {
			s.logger.WithError(err).WithField("from", in.From).Error("Failed to queue inbound message")
		}
		return nil
	}
	if err := s.RunFlow(ctx, in); err != nil {
		s.logger.WithError(err).WithField("from", in.From).Warn("Flow run failed")
	}
	return nil
}

// HandleStatus applies a provider delivery-status callback
func (s *MessageService) HandleStatus(ctx context.Context, st entities.StatusUpdate) (bool, error) {
	if st.WAMessageID == "" || st.Status == "" {
		return false, nil
	}
	return s.ledger.UpdateStatus(ctx, st.RecipientID, st.WAMessageID, st.Status)
}

// RunFlow drives the active flow for one inbound message. Runs for the same
// contact never overlap.
func (s *MessageService) RunFlow(ctx context.Context, in entities.InboundMessage) error {
	phone := infrastructure.ConversationKey(in.From)
	if phone == "" {
		return fmt.Errorf("%w: from", ErrMissingField)
	}
	return s.flowLocks.WithLock(ctx, phone, func(ctx context.Context) error {
		return s.runFlowLocked(ctx, phone, in)
	})
}

func (s *MessageService) runFlowLocked(ctx context.Context, phone string, in entities.InboundMessage) error {
	flow, err := s.flows.GetActive(ctx)
	if errors.Is(err, entities.ErrFlowNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active flow: %w", err)
	}

	conv, err := s.ledger.CreateOrGet(ctx, phone, "", "")
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	state := conv.FlowState
	logger := s.logger.WithFields(log.Fields{"phone": phone, "flow": flow.ID})

	var res RunResult
	startedAt := s.now().UTC()
	switch {
	case state.Waiting() && state.FlowID == flow.ID:
		res = ResumeFlow(flow, state, in, in.ContactName)
		startedAt = state.StartedAt
		logger.WithField("node", state.CurrentNodeID).Debug("Resuming flow")
	case Triggered(flow, in.Text):
		res = StartFlow(flow, in.Text, in.ContactName)
		logger.Debug("Starting flow")
	default:
		if state != nil {
			return s.ledger.SetFlowState(ctx, phone, nil)
		}
		return nil
	}
	if res.CutOff {
		logger.WithField("steps", res.Steps).Warn("Flow run stopped at step ceiling")
	}

	for _, ev := range res.Events {
		if err := s.deliverEvent(ctx, phone, conv.LeadName, ev); err != nil {
			return fmt.Errorf("node %s: %w", ev.NodeID, err)
		}
	}
	return s.ledger.SetFlowState(ctx, phone, res.NextState(flow.ID, startedAt))
}

func (s *MessageService) deliverEvent(ctx context.Context, phone, leadName string, ev entities.FlowEvent) error {
	switch ev.Type {
	case entities.EventMessage:
		res, err := s.messenger.SendText(ctx, entities.OutboundText{To: phone, Text: ev.Text, LeadName: leadName})
		return s.afterDelivery(ctx, phone, "text", ev.Text, res, err)

	case entities.EventQuestion:
		res, err := s.messenger.SendQuestion(ctx, entities.OutboundQuestion{
			To:        phone,
			Text:      ev.Text,
			Options:   ev.Options,
			ReplyType: ev.ReplyType,
			LeadName:  leadName,
		})
		return s.afterDelivery(ctx, phone, "interactive", ev.Text, res, err)

	case entities.EventAction:
		if err := s.actions.HandleAction(ctx, phone, ev); err != nil {
			s.logger.WithError(err).WithField("action", ev.ActionType).Warn("Flow action failed")
		}
		return nil

	case entities.EventDelay:
		d := entities.DelayData{Duration: ev.Duration, Unit: ev.Unit}.Interval()
		if s.maxDelay > 0 && d > s.maxDelay {
			d = s.maxDelay
		}
		return s.sleep(ctx, d)
	}
	return nil
}

func (s *MessageService) afterDelivery(ctx context.Context, phone, msgType, text string, res *entities.DeliveryResult, sendErr error) error {
	if errors.Is(sendErr, infrastructure.ErrInvalidRecipient) {
		return sendErr
	}
	s.recordOutgoing(ctx, phone, msgType, text, res, sendErr)
	return sendErr
}

// LoggingActionHandler records action nodes without side effects
type LoggingActionHandler struct {
	logger *log.Entry
}

func NewLoggingActionHandler() *LoggingActionHandler {
	return &LoggingActionHandler{logger: log.WithField("module", "flow_actions")}
}

func (h *LoggingActionHandler) HandleAction(ctx context.Context, phone string, ev entities.FlowEvent) error {
	h.logger.WithFields(log.Fields{
		"phone":  phone,
		"action": ev.ActionType,
		"label":  ev.Label,
		"params": ev.Params,
	}).Info("Flow action")
	return nil
}
