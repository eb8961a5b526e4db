package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/sagamate-go/serialization"
)

// ServiceProcess hosts the message handlers bound to one logical endpoint
// address. It pulls deliveries from the transport through a pool of workers,
// deserializes them, and hands them to the dispatcher. Acknowledgment follows
// the dispatch outcome: success acks, failure rejects with requeue so the
// transport's at-least-once redelivery takes over.
type ServiceProcess struct {
	endpoint   string
	transport  Transport
	dispatcher *MessageDispatcher
	serializer *serialization.EnvelopeSerializer
	logger     *slog.Logger
	workers    int
	queueSize  int

	deliveries chan TransportDelivery
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
	stopped    bool
}

// ProcessOption configures a ServiceProcess
type ProcessOption func(*ServiceProcess)

// WithProcessLogger sets the logger
func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(p *ServiceProcess) {
		p.logger = logger
	}
}

// WithProcessWorkers sets the number of concurrent dispatch workers
func WithProcessWorkers(workers int) ProcessOption {
	return func(p *ServiceProcess) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

// WithProcessQueueSize sets the size of the inbound delivery buffer
func WithProcessQueueSize(size int) ProcessOption {
	return func(p *ServiceProcess) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithProcessSerializer sets the envelope serializer
func WithProcessSerializer(serializer *serialization.EnvelopeSerializer) ProcessOption {
	return func(p *ServiceProcess) {
		p.serializer = serializer
	}
}

// NewServiceProcess creates a service process for an endpoint
func NewServiceProcess(endpoint string, transport Transport, dispatcher *MessageDispatcher, options ...ProcessOption) *ServiceProcess {
	p := &ServiceProcess{
		endpoint:   endpoint,
		transport:  transport,
		dispatcher: dispatcher,
		serializer: serialization.NewEnvelopeSerializer(),
		logger:     slog.Default(),
		workers:    4,
		queueSize:  256,
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Endpoint returns the logical endpoint address of this process
func (p *ServiceProcess) Endpoint() string {
	return p.endpoint
}

// Dispatcher returns the dispatcher hosting this process's handlers
func (p *ServiceProcess) Dispatcher() *MessageDispatcher {
	return p.dispatcher
}

// Start subscribes to the endpoint queue and spawns the worker pool
func (p *ServiceProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("service process %s already started", p.endpoint)
	}

	p.deliveries = make(chan TransportDelivery, p.queueSize)

	err := p.transport.Subscribe(ctx, p.endpoint, func(delivery TransportDelivery) error {
		select {
		case p.deliveries <- delivery:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe endpoint %s: %w", p.endpoint, err)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.started = true
	p.logger.Info("service process started",
		"endpoint", p.endpoint,
		"workers", p.workers,
	)

	return nil
}

// Stop halts intake, lets in-flight dispatches finish, then returns. The
// context bounds the grace period; on expiry remaining deliveries stay with
// the transport for redelivery.
func (p *ServiceProcess) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	// Unsubscribe returns after any in-flight intake callback completes, so
	// closing the channel afterwards is safe.
	if err := p.transport.Unsubscribe(p.endpoint); err != nil {
		p.logger.Warn("failed to unsubscribe endpoint", "endpoint", p.endpoint, "error", err)
	}
	close(p.deliveries)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("service process stopped", "endpoint", p.endpoint)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("service process %s stop timed out: %w", p.endpoint, ctx.Err())
	}
}

func (p *ServiceProcess) worker(ctx context.Context) {
	defer p.wg.Done()

	for delivery := range p.deliveries {
		p.process(ctx, delivery)
	}
}

func (p *ServiceProcess) process(ctx context.Context, delivery TransportDelivery) {
	envelope := delivery.Envelope()

	msg, err := p.serializer.Deserialize(envelope)
	if err != nil {
		// Redelivery cannot fix an undecodable payload.
		p.logger.Error("failed to deserialize delivery",
			"endpoint", p.endpoint,
			"messageType", envelope.Type,
			"error", err,
		)
		if rejectErr := delivery.Reject(false); rejectErr != nil {
			p.logger.Warn("failed to reject delivery", "error", rejectErr)
		}
		return
	}

	if err := p.dispatcher.Dispatch(ctx, msg); err != nil {
		p.logger.Error("dispatch failed, requeueing",
			"endpoint", p.endpoint,
			"messageType", msg.GetType(),
			"messageId", msg.GetID(),
			"error", err,
		)
		if rejectErr := delivery.Reject(true); rejectErr != nil {
			p.logger.Warn("failed to reject delivery", "error", rejectErr)
		}
		return
	}

	if err := delivery.Acknowledge(); err != nil {
		p.logger.Warn("failed to acknowledge delivery",
			"endpoint", p.endpoint,
			"messageId", msg.GetID(),
			"error", err,
		)
	}
}
