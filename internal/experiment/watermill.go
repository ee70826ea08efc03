package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/requestlog"
)

// Publisher publishes a JSON Event per notification to a watermill topic.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher publishes to topic on publisher.
func NewPublisher(publisher message.Publisher, topic string) (*Publisher, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &Publisher{publisher: publisher, topic: topic}, nil
}

// Notify publishes the event for entry and content.
func (p *Publisher) Notify(ctx context.Context, entry *requestlog.Entry, content string) error {
	payload, err := json.Marshal(NewEvent(entry, content))
	if err != nil {
		return fmt.Errorf("marshal experiment event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish experiment event to %s: %w", p.topic, err)
	}
	logging.Logger().Debug("published experiment event", "topic", p.topic, "message_id", msg.UUID)
	return nil
}

// NewGoChannel returns an in-process pub/sub that delivers in publish order.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, NewLoggerAdapter(logging.Logger()))
}

// Subscribe decodes events from topic and passes them to handle until ctx is
// done or the subscription closes.
func Subscribe(ctx context.Context, subscriber message.Subscriber, topic string, handle func(context.Context, Event) error) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return consume(ctx, messages, handle)
}

// consume acknowledges every message, including undecodable ones and those
// whose handler fails, so nothing is redelivered.
func consume(ctx context.Context, messages <-chan *message.Message, handle func(context.Context, Event) error) error {
	logger := logging.Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("dropping malformed experiment event", "message_id", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			if err := handle(ctx, event); err != nil {
				logger.Warn("experiment event handler failed", "request_id", event.RequestID, "err", err)
			}
			msg.Ack()
		}
	}
}

// LoggerAdapter routes watermill logs to slog.
type LoggerAdapter struct {
	logger *slog.Logger
}

// NewLoggerAdapter wraps logger for watermill.
func NewLoggerAdapter(logger *slog.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: logger}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(attrs(fields), "err", err)...)
}

// Info maps to debug because watermill is chatty.
func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, attrs(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, attrs(fields)...)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.Log(context.Background(), slog.LevelDebug-4, msg, attrs(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: l.logger.With(attrs(fields)...)}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

var _ watermill.LoggerAdapter = (*LoggerAdapter)(nil)
