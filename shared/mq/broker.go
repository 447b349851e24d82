// Package mq provides the RabbitMQ client shared by the gateway and the workers.
// Uses a topic exchange so services subscribe to routing key patterns.
package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	Exchange     = "synapse.events"
	ExchangeType = "topic"

	connectAttempts = 10
)

// Broker wraps one AMQP connection and channel.
type Broker struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
	// amqp channels are not safe for concurrent publishes
	pubMu sync.Mutex
}

// New connects to RabbitMQ and declares the exchange. Connection attempts back
// off linearly and stop early if ctx is cancelled.
func New(ctx context.Context, amqpURL string) (*Broker, error) {
	b := &Broker{url: amqpURL}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", connectAttempts, err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		b.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	return b.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends a persistent JSON message to the topic exchange.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a durable queue to every given routing key pattern.
// Pattern examples: "refactor.*", "log.#", "refactor.complete"
func (b *Broker) Subscribe(queueName string, patterns ...string) (<-chan amqp.Delivery, error) {
	q, err := b.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	for _, p := range patterns {
		if err := b.ch.QueueBind(q.Name, p, Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, p, err)
		}
	}

	// Prefetch is per channel; the workers run one handler per goroutine.
	if err := b.ch.Qos(8, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return b.ch.Consume(
		q.Name,
		"",    // consumer tag, auto-generated
		false, // manual ack after processing
		false, false, false, nil,
	)
}

// Close shuts down channel and connection.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
