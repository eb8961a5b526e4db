package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/serialization"
)

// Router fans published messages out to every endpoint subscribed to their
// type. Deliveries to different endpoints are independent: one unreachable
// endpoint fails that single delivery without affecting the others.
type Router struct {
	store      SubscriptionStore
	transport  Transport
	serializer *serialization.EnvelopeSerializer
	logger     *slog.Logger
}

// RouterOption configures the Router
type RouterOption func(*Router)

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithRouterSerializer sets the envelope serializer
func WithRouterSerializer(serializer *serialization.EnvelopeSerializer) RouterOption {
	return func(r *Router) {
		r.serializer = serializer
	}
}

// NewRouter creates a publish/subscribe router
func NewRouter(store SubscriptionStore, transport Transport, options ...RouterOption) *Router {
	r := &Router{
		store:      store,
		transport:  transport,
		serializer: serialization.NewEnvelopeSerializer(),
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Subscribe registers an endpoint's interest in a message type. Idempotent.
func (r *Router) Subscribe(ctx context.Context, endpoint string, messageType string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if messageType == "" {
		return fmt.Errorf("messageType cannot be empty")
	}

	if err := r.store.AddSubscriber(ctx, messageType, endpoint); err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}

	r.logger.Debug("subscription registered",
		"endpoint", endpoint,
		"messageType", messageType,
	)

	return nil
}

// Publish sends one copy of the message to each subscribed endpoint. Failed
// sends are collected and returned after every endpoint has been attempted.
func (r *Router) Publish(ctx context.Context, msg contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	envelope, err := r.serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	endpoints, err := r.store.GetSubscribers(ctx, msg.GetType())
	if err != nil {
		return fmt.Errorf("failed to resolve subscribers for %s: %w", msg.GetType(), err)
	}

	if len(endpoints) == 0 {
		r.logger.Debug("no subscribers for message type", "messageType", msg.GetType())
		return nil
	}

	var sendErrors []error
	for _, endpoint := range endpoints {
		if err := r.transport.Send(ctx, endpoint, envelope); err != nil {
			r.logger.Error("failed to deliver to endpoint",
				"endpoint", endpoint,
				"messageType", msg.GetType(),
				"messageId", msg.GetID(),
				"error", err,
			)
			sendErrors = append(sendErrors, fmt.Errorf("endpoint %s: %w", endpoint, err))
			continue
		}
	}

	if len(sendErrors) > 0 {
		return fmt.Errorf("publish of %s reached %d/%d endpoints: %w",
			msg.GetType(), len(endpoints)-len(sendErrors), len(endpoints), errors.Join(sendErrors...))
	}

	r.logger.Debug("message published",
		"messageType", msg.GetType(),
		"messageId", msg.GetID(),
		"endpoints", len(endpoints),
	)

	return nil
}
