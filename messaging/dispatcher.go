package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/sagamate-go/contracts"
)

// MessageHandler processes a specific message type
type MessageHandler interface {
	Handle(ctx context.Context, msg contracts.Message) error
}

// MessageHandlerFunc is a function adapter for MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg contracts.Message) error

// Handle implements MessageHandler
func (f MessageHandlerFunc) Handle(ctx context.Context, msg contracts.Message) error {
	return f(ctx, msg)
}

// MiddlewareFunc processes messages before they reach handlers
type MiddlewareFunc func(ctx context.Context, msg contracts.Message, next MessageHandler) error

// MessageDispatcher routes inbound messages to the handlers registered for
// their type. The registration table is built explicitly at startup; there is
// no runtime type scanning.
type MessageDispatcher struct {
	handlers   map[string][]MessageHandler
	mu         sync.RWMutex
	logger     *slog.Logger
	middleware []MiddlewareFunc
}

// DispatcherOption configures the MessageDispatcher
type DispatcherOption func(*MessageDispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *MessageDispatcher) {
		d.logger = logger
	}
}

// WithMiddleware adds middleware to the dispatcher
func WithMiddleware(middleware ...MiddlewareFunc) DispatcherOption {
	return func(d *MessageDispatcher) {
		d.middleware = append(d.middleware, middleware...)
	}
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(options ...DispatcherOption) *MessageDispatcher {
	d := &MessageDispatcher{
		handlers: make(map[string][]MessageHandler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// RegisterHandler registers a handler for a message type name
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) error {
	if messageType == "" {
		return fmt.Errorf("messageType cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = append(d.handlers[messageType], handler)

	d.logger.Info("registered message handler", "messageType", messageType)

	return nil
}

// RegisterHandlerFunc registers a function as a handler
func (d *MessageDispatcher) RegisterHandlerFunc(messageType string, handler MessageHandlerFunc) error {
	return d.RegisterHandler(messageType, handler)
}

// Handle implements the MessageHandler interface by dispatching to registered handlers
func (d *MessageDispatcher) Handle(ctx context.Context, msg contracts.Message) error {
	return d.Dispatch(ctx, msg)
}

// Dispatch sends a message to all handlers registered for its type. Handlers
// run concurrently; one handler's failure does not prevent the others from
// running, but any failure is reported so the transport can redeliver.
func (d *MessageDispatcher) Dispatch(ctx context.Context, msg contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	typeName := msg.GetType()

	d.mu.RLock()
	handlers, exists := d.handlers[typeName]
	d.mu.RUnlock()

	if !exists {
		// Endpoints receive only the types they subscribed to, so this is
		// unexpected but harmless; redelivery cannot change the outcome.
		d.logger.Warn("no handlers registered for message type",
			"messageType", typeName,
			"messageId", msg.GetID(),
		)
		return nil
	}

	handlersCopy := make([]MessageHandler, len(handlers))
	copy(handlersCopy, handlers)

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlersCopy))

	for _, registered := range handlersCopy {
		wg.Add(1)
		go func(handler MessageHandler) {
			defer wg.Done()

			chained := d.buildMiddlewareChain(handler)

			if err := chained.Handle(ctx, msg); err != nil {
				d.logger.Error("handler failed",
					"messageType", typeName,
					"messageId", msg.GetID(),
					"error", err,
				)
				errChan <- fmt.Errorf("handler failed for message %s: %w", msg.GetID(), err)
			}
		}(registered)
	}

	wg.Wait()
	close(errChan)

	var failures []error
	for err := range errChan {
		failures = append(failures, err)
	}

	if len(failures) > 0 {
		return errors.Join(failures...)
	}

	d.logger.Debug("message dispatched",
		"messageType", typeName,
		"messageId", msg.GetID(),
		"handlerCount", len(handlersCopy),
	)

	return nil
}

// GetRegisteredTypes returns all message types that have handlers
func (d *MessageDispatcher) GetRegisteredTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.handlers))
	for typeName := range d.handlers {
		types = append(types, typeName)
	}
	return types
}

// buildMiddlewareChain builds the middleware execution chain
func (d *MessageDispatcher) buildMiddlewareChain(handler MessageHandler) MessageHandler {
	if len(d.middleware) == 0 {
		return handler
	}

	result := handler
	for i := len(d.middleware) - 1; i >= 0; i-- {
		middleware := d.middleware[i]
		next := result
		result = MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			return middleware(ctx, msg, next)
		})
	}

	return result
}
