// Package memory provides an in-process transport backed by per-endpoint
// channel queues. Suitable for single-process deployments, development, and
// tests; delivery is at-least-once within the process and best-effort ordered
// per endpoint.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/messaging"
)

// Transport implements messaging.Transport over in-process channels. An
// endpoint becomes reachable when something subscribes to it; sending to an
// unknown endpoint fails that single delivery, mirroring an unreachable
// remote queue.
type Transport struct {
	endpoints map[string]*endpointQueue
	queueSize int
	logger    *slog.Logger
	mu        sync.RWMutex
	closed    bool
}

type endpointQueue struct {
	name   string
	ch     chan *contracts.Envelope
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TransportOption configures the Transport
type TransportOption func(*Transport)

// WithQueueSize sets the per-endpoint queue capacity
func WithQueueSize(size int) TransportOption {
	return func(t *Transport) {
		if size > 0 {
			t.queueSize = size
		}
	}
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates an in-memory transport
func NewTransport(options ...TransportOption) *Transport {
	t := &Transport{
		endpoints: make(map[string]*endpointQueue),
		queueSize: 1024,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Send enqueues one copy of an envelope to a single endpoint
func (t *Transport) Send(ctx context.Context, endpoint string, envelope *contracts.Envelope) error {
	t.mu.RLock()
	queue, exists := t.endpoints[endpoint]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return fmt.Errorf("transport is closed")
	}
	if !exists {
		return fmt.Errorf("endpoint %s is not reachable", endpoint)
	}

	select {
	case queue.ch <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue for endpoint %s is full", endpoint)
	}
}

// Subscribe registers a handler for deliveries arriving at an endpoint and
// starts the delivery pump for its queue
func (t *Transport) Subscribe(ctx context.Context, endpoint string, handler func(delivery messaging.TransportDelivery) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if _, exists := t.endpoints[endpoint]; exists {
		return fmt.Errorf("endpoint %s already subscribed", endpoint)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	queue := &endpointQueue{
		name:   endpoint,
		ch:     make(chan *contracts.Envelope, t.queueSize),
		cancel: cancel,
	}
	t.endpoints[endpoint] = queue

	queue.wg.Add(1)
	go t.pump(pumpCtx, queue, handler)

	t.logger.Debug("endpoint subscribed", "endpoint", endpoint)
	return nil
}

// pump delivers queued envelopes to the handler one at a time, preserving
// per-endpoint delivery order
func (t *Transport) pump(ctx context.Context, queue *endpointQueue, handler func(delivery messaging.TransportDelivery) error) {
	defer queue.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope := <-queue.ch:
			delivery := &memoryDelivery{envelope: envelope, queue: queue}
			if err := handler(delivery); err != nil {
				t.logger.Warn("delivery handler failed, requeueing",
					"endpoint", queue.name,
					"messageType", envelope.Type,
					"error", err,
				)
				delivery.requeue()
			}
		}
	}
}

// Unsubscribe stops the delivery pump for an endpoint. It returns after any
// in-flight handler invocation has completed. Undelivered envelopes are
// dropped with the queue, as they would be with a purged broker queue.
func (t *Transport) Unsubscribe(endpoint string) error {
	t.mu.Lock()
	queue, exists := t.endpoints[endpoint]
	if exists {
		delete(t.endpoints, endpoint)
	}
	t.mu.Unlock()

	if !exists {
		return fmt.Errorf("endpoint %s is not subscribed", endpoint)
	}

	queue.cancel()
	queue.wg.Wait()

	t.logger.Debug("endpoint unsubscribed", "endpoint", endpoint)
	return nil
}

// Close stops all delivery pumps
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	queues := make([]*endpointQueue, 0, len(t.endpoints))
	for _, queue := range t.endpoints {
		queues = append(queues, queue)
	}
	t.endpoints = make(map[string]*endpointQueue)
	t.mu.Unlock()

	for _, queue := range queues {
		queue.cancel()
		queue.wg.Wait()
	}

	return nil
}

// memoryDelivery is a single in-process delivery
type memoryDelivery struct {
	envelope *contracts.Envelope
	queue    *endpointQueue
}

// Envelope returns the delivered envelope
func (d *memoryDelivery) Envelope() *contracts.Envelope {
	return d.envelope
}

// Acknowledge marks the delivery as processed
func (d *memoryDelivery) Acknowledge() error {
	return nil
}

// Reject rejects the delivery; with requeue the envelope goes back on the
// endpoint queue for redelivery
func (d *memoryDelivery) Reject(requeue bool) error {
	if requeue {
		d.requeue()
	}
	return nil
}

func (d *memoryDelivery) requeue() {
	select {
	case d.queue.ch <- d.envelope:
	default:
		// queue full; the envelope is lost, as it would be on a broker
		// whose redelivery buffer overflows
	}
}

var _ messaging.Transport = (*Transport)(nil)
