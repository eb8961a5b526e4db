// Package rabbitmq implements messaging.Transport over AMQP 0.9.1. Each
// logical endpoint maps to one durable queue; publishing uses the default
// exchange with the endpoint name as routing key, and consuming uses manual
// acknowledgment so the at-least-once contract holds across restarts.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/messaging"
)

// Transport implements messaging.Transport for RabbitMQ
type Transport struct {
	conn      *amqp.Connection
	publishCh *amqp.Channel
	prefetch  int
	logger    *slog.Logger

	mu        sync.Mutex
	consumers map[string]*consumer
	declared  map[string]bool
	closed    bool
}

type consumer struct {
	channel *amqp.Channel
	tag     string
	done    chan struct{}
}

// TransportOption configures the Transport
type TransportOption func(*Transport)

// WithPrefetchCount sets the per-consumer prefetch window
func WithPrefetchCount(count int) TransportOption {
	return func(t *Transport) {
		if count > 0 {
			t.prefetch = count
		}
	}
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport connects to RabbitMQ and prepares a publishing channel
func NewTransport(connectionString string, options ...TransportOption) (*Transport, error) {
	t := &Transport{
		prefetch:  16,
		logger:    slog.Default(),
		consumers: make(map[string]*consumer),
		declared:  make(map[string]bool),
	}

	for _, opt := range options {
		opt(t)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	t.conn = conn
	t.publishCh = channel

	return t, nil
}

// declareQueue declares the durable queue backing an endpoint. Idempotent.
func (t *Transport) declareQueue(channel *amqp.Channel, endpoint string) error {
	t.mu.Lock()
	alreadyDeclared := t.declared[endpoint]
	t.mu.Unlock()

	if alreadyDeclared {
		return nil
	}

	if _, err := channel.QueueDeclare(endpoint, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", endpoint, err)
	}

	t.mu.Lock()
	t.declared[endpoint] = true
	t.mu.Unlock()

	return nil
}

// Send publishes one envelope to an endpoint's queue
func (t *Transport) Send(ctx context.Context, endpoint string, envelope *contracts.Envelope) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	channel := t.publishCh
	t.mu.Unlock()

	if err := t.declareQueue(channel, endpoint); err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	err = channel.PublishWithContext(ctx, "", endpoint, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     envelope.ID,
		Type:          envelope.Type,
		CorrelationId: envelope.CorrelationID,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", endpoint, err)
	}

	return nil
}

// Subscribe starts consuming an endpoint's queue with manual acknowledgment
func (t *Transport) Subscribe(ctx context.Context, endpoint string, handler func(delivery messaging.TransportDelivery) error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	if _, exists := t.consumers[endpoint]; exists {
		t.mu.Unlock()
		return fmt.Errorf("endpoint %s already subscribed", endpoint)
	}
	t.mu.Unlock()

	channel, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := t.declareQueue(channel, endpoint); err != nil {
		channel.Close()
		return err
	}

	if err := channel.Qos(t.prefetch, 0, false); err != nil {
		channel.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	tag := "sagamate." + endpoint
	deliveries, err := channel.Consume(endpoint, tag, false, false, false, false, nil)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to consume queue %s: %w", endpoint, err)
	}

	c := &consumer{channel: channel, tag: tag, done: make(chan struct{})}

	t.mu.Lock()
	t.consumers[endpoint] = c
	t.mu.Unlock()

	go t.pump(endpoint, c, deliveries, handler)

	t.logger.Info("consuming endpoint queue", "endpoint", endpoint, "prefetch", t.prefetch)
	return nil
}

func (t *Transport) pump(endpoint string, c *consumer, deliveries <-chan amqp.Delivery, handler func(delivery messaging.TransportDelivery) error) {
	defer close(c.done)

	for d := range deliveries {
		var envelope contracts.Envelope
		if err := json.Unmarshal(d.Body, &envelope); err != nil {
			t.logger.Error("discarding undecodable delivery",
				"endpoint", endpoint,
				"messageId", d.MessageId,
				"error", err,
			)
			if nackErr := d.Nack(false, false); nackErr != nil {
				t.logger.Warn("failed to nack delivery", "error", nackErr)
			}
			continue
		}

		if err := handler(&amqpDelivery{delivery: d, envelope: &envelope}); err != nil {
			t.logger.Warn("delivery handler failed, requeueing",
				"endpoint", endpoint,
				"messageType", envelope.Type,
				"error", err,
			)
			if nackErr := d.Nack(false, true); nackErr != nil {
				t.logger.Warn("failed to nack delivery", "error", nackErr)
			}
		}
	}
}

// Unsubscribe cancels the endpoint's consumer and waits for its pump to drain
func (t *Transport) Unsubscribe(endpoint string) error {
	t.mu.Lock()
	c, exists := t.consumers[endpoint]
	if exists {
		delete(t.consumers, endpoint)
	}
	t.mu.Unlock()

	if !exists {
		return fmt.Errorf("endpoint %s is not subscribed", endpoint)
	}

	if err := c.channel.Cancel(c.tag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer: %w", err)
	}
	<-c.done

	return c.channel.Close()
}

// Close shuts down all consumers and the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := make(map[string]*consumer, len(t.consumers))
	for endpoint, c := range t.consumers {
		consumers[endpoint] = c
	}
	t.consumers = make(map[string]*consumer)
	t.mu.Unlock()

	for endpoint, c := range consumers {
		if err := c.channel.Cancel(c.tag, false); err != nil {
			t.logger.Warn("failed to cancel consumer", "endpoint", endpoint, "error", err)
		}
		<-c.done
		c.channel.Close()
	}

	if err := t.publishCh.Close(); err != nil {
		t.logger.Warn("failed to close publish channel", "error", err)
	}

	return t.conn.Close()
}

// amqpDelivery adapts an AMQP delivery to messaging.TransportDelivery
type amqpDelivery struct {
	delivery amqp.Delivery
	envelope *contracts.Envelope
}

// Envelope returns the delivered envelope
func (d *amqpDelivery) Envelope() *contracts.Envelope {
	return d.envelope
}

// Acknowledge acks the delivery
func (d *amqpDelivery) Acknowledge() error {
	return d.delivery.Ack(false)
}

// Reject nacks the delivery with optional requeue
func (d *amqpDelivery) Reject(requeue bool) error {
	return d.delivery.Nack(false, requeue)
}

var _ messaging.Transport = (*Transport)(nil)
