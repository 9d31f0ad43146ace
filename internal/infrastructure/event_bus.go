package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"project_waflow/internal/entities"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	log "github.com/sirupsen/logrus"
)

const TopicInboundMessages = "whatsapp.inbound"

type InboundHandler func(ctx context.Context, msg entities.InboundMessage) error

// EventBus carries webhook messages from the HTTP handler to the flow driver
type EventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *log.Entry
}

func NewEventBus(pub message.Publisher, sub message.Subscriber) *EventBus {
	return &EventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     log.WithField("module", "event_bus"),
	}
}

// NewInMemoryEventBus builds a bus on an in-process go channel pub/sub
func NewInMemoryEventBus(buffer int64) *EventBus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
	return NewEventBus(pubSub, pubSub)
}

func (eb *EventBus) PublishInbound(ctx context.Context, in entities.InboundMessage) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal inbound message: %w", err)
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	return eb.publisher.Publish(TopicInboundMessages, msg)
}

// SubscribeInbound delivers every inbound message to handler until ctx ends.
// Messages are acked whatever the outcome; nothing is redelivered.
func (eb *EventBus) SubscribeInbound(ctx context.Context, handler InboundHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, TopicInboundMessages)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicInboundMessages, err)
	}

	go func() {
		for msg := range messages {
			var in entities.InboundMessage
			if err := json.Unmarshal(msg.Payload, &in); err != nil {
				eb.logger.WithError(err).WithField("uuid", msg.UUID).Error("Dropping malformed inbound message")
				msg.Ack()
				continue
			}
			if err := handler(ctx, in); err != nil {
				eb.logger.WithError(err).WithField("from", in.From).Warn("Inbound handler failed")
			}
			msg.Ack()
		}
	}()

	return nil
}

func (eb *EventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}
	if any(eb.subscriber) != any(eb.publisher) {
		return eb.subscriber.Close()
	}
	return nil
}
