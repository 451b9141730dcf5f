package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange result events are published to.
const DefaultExchange = "quiz.events"

// Publisher sends JSON domain events to a durable topic exchange. A publisher
// built without a URL is disabled and drops events after logging them.
type Publisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	log      *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewPublisher(url, exchange string, log *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{exchange: exchange, log: log, now: time.Now}
	if url == "" {
		log.Warn("rabbitmq url is empty, event publishing is disabled")
		return p, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info("event publisher ready", "exchange", exchange)
	return p, nil
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if !p.enabled {
		p.log.Debug("event publishing disabled, skipping", "routing_key", routingKey)
		return nil
	}
	msg, err := newPublishing(routingKey, payload, p.now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.log.Warn("close rabbitmq channel", "err", err)
	}
	return p.conn.Close()
}

func newPublishing(routingKey string, payload any, at time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    at,
		Body:         body,
		Headers: amqp091.Table{
			"event_type": routingKey,
		},
	}, nil
}
