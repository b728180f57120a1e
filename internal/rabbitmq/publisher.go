package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-engine/internal/config"
	"chat-engine/internal/logging"
	"chat-engine/internal/observability"
)

// Publisher publishes chat events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker and declares the exchange. Any failure
// degrades to a publisher that only logs, so chat keeps working without a broker.
func NewPublisher(cfg config.AMQPConfig) Publisher {
	if cfg.URL == "" {
		return degraded("empty amqp url")
	}

	p, err := connect(cfg)
	if err != nil {
		return degraded(err.Error())
	}
	logging.L().Info().Str("exchange", cfg.Exchange).Msg("event broker connected")
	return p
}

func connect(cfg config.AMQPConfig) (*amqpPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if envelope, ok := event.(observability.EventEnvelope); ok {
		msg.MessageId = envelope.ID
		msg.Type = envelope.Name
		msg.AppId = envelope.Source
		msg.Timestamp = envelope.OccurredAt
		msg.CorrelationId = envelope.RequestID
		msg.Headers = amqp.Table(envelope.Headers())
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		observability.IncAMQPPublishError()
		logging.Ctx(ctx).Warn().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// logPublisher stands in when no broker is reachable.
type logPublisher struct {
	reason string
}

func degraded(reason string) logPublisher {
	logging.L().Warn().Str("reason", reason).Msg("event broker unavailable, events are only logged")
	return logPublisher{reason: reason}
}

func (logPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	evt := logging.Ctx(ctx).Debug().Str("routing_key", routingKey)
	if envelope, ok := event.(observability.EventEnvelope); ok {
		evt = evt.Str("event_id", envelope.ID).Int64(logging.FieldRoomID, envelope.RoomID)
	}
	evt.Msg("event dropped")
	return nil
}

func (logPublisher) Close() error { return nil }

// PublisherMode is "amqp" for a live broker and "noop" otherwise.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case logPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if lp, ok := p.(logPublisher); ok {
		return lp.reason
	}
	return ""
}
