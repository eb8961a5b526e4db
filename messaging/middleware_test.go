package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/internal/reliability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func middlewareTestMessage() contracts.Message {
	msg := contracts.NewBaseMessage("middlewareTestMessage")
	return &msg
}

func TestRetryMiddlewareRecoversTransientFailure(t *testing.T) {
	dispatcher := NewMessageDispatcher(
		WithDispatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMiddleware(RetryMiddleware(reliability.NewFixedDelay(time.Millisecond, 3))),
	)

	var attempts atomic.Int32
	require.NoError(t, dispatcher.RegisterHandlerFunc("middlewareTestMessage",
		func(ctx context.Context, msg contracts.Message) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		}))

	assert.NoError(t, dispatcher.Dispatch(context.Background(), middlewareTestMessage()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryMiddlewareSurfacesPermanentFailure(t *testing.T) {
	dispatcher := NewMessageDispatcher(
		WithDispatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMiddleware(RetryMiddleware(reliability.NewFixedDelay(time.Millisecond, 5))),
	)

	var attempts atomic.Int32
	cause := errors.New("poisoned payload")
	require.NoError(t, dispatcher.RegisterHandlerFunc("middlewareTestMessage",
		func(ctx context.Context, msg contracts.Message) error {
			attempts.Add(1)
			return reliability.Permanent(cause)
		}))

	err := dispatcher.Dispatch(context.Background(), middlewareTestMessage())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestLoggingMiddlewarePassesResultThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewMessageDispatcher(
		WithDispatcherLogger(logger),
		WithMiddleware(LoggingMiddleware(logger)),
	)

	cause := errors.New("handler failed")
	require.NoError(t, dispatcher.RegisterHandlerFunc("middlewareTestMessage",
		func(ctx context.Context, msg contracts.Message) error {
			return cause
		}))

	assert.ErrorIs(t, dispatcher.Dispatch(context.Background(), middlewareTestMessage()), cause)
}
