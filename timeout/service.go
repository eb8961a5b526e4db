package timeout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/saga"
	"github.com/glimte/sagamate-go/serialization"
)

// DeliveryFunc injects a due timeout reply into the dispatch path used for
// ordinary inbound messages
type DeliveryFunc func(ctx context.Context, reply *Reply) error

// Service is the durable timeout coordinator. Requests are persisted before
// RequestTimeout returns; a background poll loop scans for due entries on a
// fixed interval and redelivers them as timeout replies.
//
// Delivery is at-least-once: if delivering succeeds but the subsequent delete
// fails, the entry is delivered again on the next tick. Handlers receiving
// replies must check current saga state and no-op on stale ones. Staleness is
// bounded by the poll interval; this is the documented contract, not exact
// wall-clock delivery.
type Service struct {
	store    Store
	deliver  DeliveryFunc
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ServiceOption configures the Service
type ServiceOption func(*Service)

// WithPollInterval sets the scan interval for due entries
func WithPollInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithServiceLogger sets the logger
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a timeout service over a store and a delivery path
func NewService(store Store, deliver DeliveryFunc, options ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		deliver:  deliver,
		interval: 100 * time.Millisecond,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	serialization.Register(ReplyMessageType, func() contracts.Message { return &Reply{} })

	return s
}

// RequestTimeout durably schedules a wake-up for a saga instance. The entry
// is persisted before this returns so a crash afterwards cannot lose it.
func (s *Service) RequestTimeout(ctx context.Context, sagaType string, correlationKey string, dueAt time.Time, customData string) error {
	entry := NewEntry(sagaType, correlationKey, dueAt, customData)

	if err := s.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist timeout entry: %w", err)
	}

	s.logger.Debug("timeout scheduled",
		"sagaType", sagaType,
		"correlationKey", correlationKey,
		"dueAt", dueAt,
	)

	return nil
}

// Start launches the background poll loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("timeout service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("timeout service started", "pollInterval", s.interval)
	return nil
}

// Stop halts the poll loop and waits for the in-flight tick. No tick begins
// after Stop returns. Pending entries stay durable for the next run.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info("timeout service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll delivers every due entry, deleting each one after a successful
// delivery. Failed deliveries and failed deletes both leave the entry in
// place for the next tick.
func (s *Service) poll(ctx context.Context) {
	due, err := s.store.FindDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to scan for due timeouts", "error", err)
		return
	}

	for _, entry := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reply := NewReply(entry.SagaType, entry.CorrelationKey, entry.CustomData)

		if err := s.deliver(ctx, reply); err != nil {
			s.logger.Warn("timeout delivery failed, will retry",
				"sagaType", entry.SagaType,
				"correlationKey", entry.CorrelationKey,
				"error", err,
			)
			continue
		}

		if err := s.store.Delete(ctx, entry.ID); err != nil {
			s.logger.Warn("failed to delete delivered timeout, it will be redelivered",
				"entryId", entry.ID,
				"error", err,
			)
			continue
		}

		s.logger.Debug("timeout delivered",
			"sagaType", entry.SagaType,
			"correlationKey", entry.CorrelationKey,
		)
	}
}

var _ saga.TimeoutScheduler = (*Service)(nil)
