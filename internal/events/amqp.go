package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes events to a topic exchange.
type AMQP struct {
	conn       *amqp.Connection
	exchange   string
	routingKey string
	mu         sync.Mutex
	logger     *slog.Logger
}

// AMQPConfig configures DialAMQP.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	Logger     *slog.Logger
}

// DialAMQP connects and declares the exchange.
func DialAMQP(cfg AMQPConfig) (*AMQP, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return &AMQP{
		conn:       conn,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     cfg.Logger,
	}, nil
}

func (a *AMQP) PublishTurn(ctx context.Context, ev TurnCompleted) error {
	env := NewEnvelope(TypeTurnCompleted, ev.ChatID, ev)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Meta.Type, err)
	}
	a.logger.Debug("event published", "type", env.Meta.Type, "exchange", a.exchange, "key", a.routingKey)
	return nil
}

func (a *AMQP) Close() error {
	return a.conn.Close()
}

// NewEnvelope wraps data with a fresh id. The chat id doubles as the
// correlation id so consumers can group a conversation's events.
func NewEnvelope(eventType, correlationID string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: correlationID,
			Type:          eventType,
			Time:          time.Now().UTC(),
		},
		Data: data,
	}
}
