package messaging

import (
	"context"

	"github.com/glimte/sagamate-go/contracts"
)

// Transport moves serialized envelopes between logical endpoints. Delivery
// semantics are at-least-once with best-effort ordering; everything built on
// top of a Transport must tolerate duplicates and reordering.
type Transport interface {
	// Send enqueues one copy of an envelope to a single endpoint
	Send(ctx context.Context, endpoint string, envelope *contracts.Envelope) error

	// Subscribe registers a handler for deliveries arriving at an endpoint.
	// The handler is invoked once per delivery; its error governs redelivery.
	Subscribe(ctx context.Context, endpoint string, handler func(delivery TransportDelivery) error) error

	// Unsubscribe stops delivering to an endpoint
	Unsubscribe(endpoint string) error

	// Close closes all resources
	Close() error
}

// TransportDelivery represents a single message delivery from the transport
type TransportDelivery interface {
	// Envelope returns the delivered envelope
	Envelope() *contracts.Envelope

	// Acknowledge marks the delivery as successfully processed
	Acknowledge() error

	// Reject rejects the delivery with optional requeue
	Reject(requeue bool) error
}

// SubscriptionStore is the durable mapping from message type to the endpoints
// that have declared interest in it.
type SubscriptionStore interface {
	// AddSubscriber records interest; registering the same pair twice is a no-op
	AddSubscriber(ctx context.Context, messageType string, endpoint string) error

	// GetSubscribers returns the endpoints subscribed to a message type
	GetSubscribers(ctx context.Context, messageType string) ([]string, error)
}
