package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/internal/reliability"
)

// LoggingMiddleware records each handler invocation with its duration and
// outcome
func LoggingMiddleware(logger *slog.Logger) MiddlewareFunc {
	return func(ctx context.Context, msg contracts.Message, next MessageHandler) error {
		start := time.Now()
		err := next.Handle(ctx, msg)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("message handling failed",
				"messageType", msg.GetType(),
				"messageId", msg.GetID(),
				"duration", elapsed,
				"error", err,
			)
			return err
		}

		logger.Debug("message handled",
			"messageType", msg.GetType(),
			"messageId", msg.GetID(),
			"duration", elapsed,
		)
		return nil
	}
}

// RetryMiddleware repeats failed handler invocations per the policy before
// the failure is surfaced to the transport for redelivery. Wrap unfixable
// errors with reliability.Permanent to skip the retries.
func RetryMiddleware(policy reliability.RetryPolicy) MiddlewareFunc {
	return func(ctx context.Context, msg contracts.Message, next MessageHandler) error {
		return reliability.Retry(ctx, policy, func() error {
			return next.Handle(ctx, msg)
		})
	}
}
