package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/sagamate-go/contracts"
)

// Publisher sends outbound messages produced by saga handlers
type Publisher interface {
	Publish(ctx context.Context, msg contracts.Message) error
}

// TimeoutScheduler registers durable wake-up requests for saga instances
type TimeoutScheduler interface {
	RequestTimeout(ctx context.Context, sagaType string, correlationKey string, dueAt time.Time, customData string) error
}

// Runtime correlates inbound messages to saga instances and advances them.
// One message may be handled by several saga types; each is processed
// independently so a failure in one cannot block the others.
type Runtime struct {
	store         Store
	publisher     Publisher
	timeouts      TimeoutScheduler
	registrations map[string][]*Registration // message type -> candidate sagas
	maxAttempts   int
	logger        *slog.Logger
	mu            sync.RWMutex
}

// RuntimeOption configures the Runtime
type RuntimeOption func(*Runtime)

// WithRuntimeLogger sets the logger
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithTimeoutScheduler sets the scheduler used for timeout requests
func WithTimeoutScheduler(scheduler TimeoutScheduler) RuntimeOption {
	return func(r *Runtime) {
		r.timeouts = scheduler
	}
}

// WithMaxAttempts bounds the reload-and-reapply retries on version conflicts
func WithMaxAttempts(attempts int) RuntimeOption {
	return func(r *Runtime) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// NewRuntime creates a saga runtime over a store and a publisher
func NewRuntime(store Store, publisher Publisher, options ...RuntimeOption) *Runtime {
	r := &Runtime{
		store:         store,
		publisher:     publisher,
		registrations: make(map[string][]*Registration),
		maxAttempts:   5,
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register adds a saga and its correlation mappings to the runtime
func (r *Runtime) Register(reg *Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range reg.Mappings {
		r.registrations[m.MessageType] = append(r.registrations[m.MessageType], reg)
	}

	r.logger.Info("registered saga",
		"sagaType", reg.Saga.SagaType(),
		"messageTypes", len(reg.Mappings),
	)

	return nil
}

// MessageTypes returns every message type some registered saga consumes
func (r *Runtime) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.registrations))
	for messageType := range r.registrations {
		types = append(types, messageType)
	}
	return types
}

// Handle implements messaging.MessageHandler
func (r *Runtime) Handle(ctx context.Context, msg contracts.Message) error {
	return r.Dispatch(ctx, msg)
}

// Dispatch routes one inbound message through every candidate saga type
func (r *Runtime) Dispatch(ctx context.Context, msg contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	r.mu.RLock()
	candidates := r.registrations[msg.GetType()]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		r.logger.Debug("no sagas registered for message type", "messageType", msg.GetType())
		return nil
	}

	var failures []error
	for _, reg := range candidates {
		if err := r.dispatchTo(ctx, reg, msg); err != nil {
			failures = append(failures, fmt.Errorf("saga %s: %w", reg.Saga.SagaType(), err))
		}
	}

	return errors.Join(failures...)
}

// dispatchTo processes the message for one saga type, retrying conflicting
// persistence attempts with a full reload-and-reapply.
func (r *Runtime) dispatchTo(ctx context.Context, reg *Registration, msg contracts.Message) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.dispatchOnce(ctx, reg, msg)
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrDuplicateKey) {
			return err
		}

		r.logger.Debug("retrying after persistence conflict",
			"sagaType", reg.Saga.SagaType(),
			"messageType", msg.GetType(),
			"attempt", attempt,
		)
	}

	// Exhausted: hand the message back to the transport for redelivery.
	return fmt.Errorf("persistence conflict persisted after %d attempts: %w", r.maxAttempts, err)
}

func (r *Runtime) dispatchOnce(ctx context.Context, reg *Registration, msg contracts.Message) error {
	sagaType := reg.Saga.SagaType()

	mapping, ok := reg.MappingFor(msg.GetType())
	if !ok {
		r.logger.Warn("no correlation mapping for message type",
			"sagaType", sagaType,
			"messageType", msg.GetType(),
		)
		return nil
	}

	key, ok := ResolveCorrelationKey(mapping, msg)
	if !ok {
		// The message does not address this saga; nothing to do.
		r.logger.Debug("message carries no correlation key for saga",
			"sagaType", sagaType,
			"messageType", msg.GetType(),
		)
		return nil
	}

	instance, err := r.store.Find(ctx, sagaType, key)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrInstanceNotFound):
		if !mapping.Initiates {
			// Late or out-of-order message; retrying cannot change this.
			r.logger.Warn("dropping message that correlates to no instance",
				"sagaType", sagaType,
				"messageType", msg.GetType(),
				"correlationKey", key,
				"messageId", msg.GetID(),
			)
			return nil
		}
		instance = NewInstance(sagaType, key)
		created = true
	default:
		return fmt.Errorf("failed to load saga instance: %w", err)
	}

	data := reg.Saga.NewData()
	if len(instance.Data) > 0 {
		if err := json.Unmarshal(instance.Data, data); err != nil {
			return fmt.Errorf("failed to decode saga data for %s/%s: %w", sagaType, key, err)
		}
	}

	exec := &Execution{
		sagaType:       sagaType,
		correlationKey: key,
		data:           data,
		created:        created,
	}

	if err := reg.Saga.Handle(ctx, exec, msg); err != nil {
		// Nothing has been persisted and no side effects applied.
		return fmt.Errorf("handler failed: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode saga data for %s/%s: %w", sagaType, key, err)
	}
	instance.Data = raw

	if err := r.persist(ctx, instance, exec, created); err != nil {
		return err
	}

	return r.applySideEffects(ctx, sagaType, key, exec)
}

// persist writes the outcome as a single conditional store operation
func (r *Runtime) persist(ctx context.Context, instance *Instance, exec *Execution, created bool) error {
	switch {
	case created && exec.completed:
		instance.Completed = true
		return r.store.Insert(ctx, instance)
	case created:
		return r.store.Insert(ctx, instance)
	case exec.completed:
		return r.store.MarkComplete(ctx, instance, instance.Version)
	default:
		return r.store.UpdateIfVersionMatches(ctx, instance, instance.Version)
	}
}

// applySideEffects runs after successful persistence so a store failure can
// never leak half-applied publishes or timeouts.
func (r *Runtime) applySideEffects(ctx context.Context, sagaType string, key string, exec *Execution) error {
	var failures []error

	for _, out := range exec.publishes {
		if err := r.publisher.Publish(ctx, out); err != nil {
			r.logger.Error("failed to publish saga side effect",
				"sagaType", sagaType,
				"correlationKey", key,
				"messageType", out.GetType(),
				"error", err,
			)
			failures = append(failures, fmt.Errorf("publish %s: %w", out.GetType(), err))
		}
	}

	for _, req := range exec.timeouts {
		if r.timeouts == nil {
			failures = append(failures, fmt.Errorf("timeout requested but no scheduler configured"))
			continue
		}
		dueAt := time.Now().UTC().Add(req.Delay)
		if err := r.timeouts.RequestTimeout(ctx, sagaType, key, dueAt, req.CustomData); err != nil {
			r.logger.Error("failed to register saga timeout",
				"sagaType", sagaType,
				"correlationKey", key,
				"error", err,
			)
			failures = append(failures, fmt.Errorf("request timeout: %w", err))
		}
	}

	return errors.Join(failures...)
}
