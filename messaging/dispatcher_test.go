package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchTestMessage struct {
	contracts.BaseMessage
	Payload string `json:"payload"`
}

func newDispatchTestMessage(payload string) *dispatchTestMessage {
	return &dispatchTestMessage{
		BaseMessage: contracts.NewBaseMessage("dispatchTestMessage"),
		Payload:     payload,
	}
}

func TestRegisterHandlerValidation(t *testing.T) {
	d := NewMessageDispatcher()

	assert.Error(t, d.RegisterHandler("", MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error { return nil })))
	assert.Error(t, d.RegisterHandler("dispatchTestMessage", nil))
}

func TestDispatchInvokesAllHandlers(t *testing.T) {
	d := NewMessageDispatcher()

	var calls int32
	handler := MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, d.RegisterHandler("dispatchTestMessage", handler))
	require.NoError(t, d.RegisterHandler("dispatchTestMessage", handler))

	err := d.Dispatch(context.Background(), newDispatchTestMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDispatchUnknownTypeIsNotAnError(t *testing.T) {
	d := NewMessageDispatcher()

	err := d.Dispatch(context.Background(), newDispatchTestMessage("nobody home"))
	assert.NoError(t, err)
}

func TestDispatchOneFailureDoesNotBlockOthers(t *testing.T) {
	d := NewMessageDispatcher()

	var succeeded int32
	require.NoError(t, d.RegisterHandlerFunc("dispatchTestMessage", func(ctx context.Context, msg contracts.Message) error {
		return errors.New("boom")
	}))
	require.NoError(t, d.RegisterHandlerFunc("dispatchTestMessage", func(ctx context.Context, msg contracts.Message) error {
		atomic.AddInt32(&succeeded, 1)
		return nil
	}))

	err := d.Dispatch(context.Background(), newDispatchTestMessage("hello"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&succeeded))
}

func TestMiddlewareRunsInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	d := NewMessageDispatcher(
		WithMiddleware(func(ctx context.Context, msg contracts.Message, next MessageHandler) error {
			record("outer")
			return next.Handle(ctx, msg)
		}),
		WithMiddleware(func(ctx context.Context, msg contracts.Message, next MessageHandler) error {
			record("inner")
			return next.Handle(ctx, msg)
		}),
	)

	require.NoError(t, d.RegisterHandlerFunc("dispatchTestMessage", func(ctx context.Context, msg contracts.Message) error {
		record("handler")
		return nil
	}))

	require.NoError(t, d.Dispatch(context.Background(), newDispatchTestMessage("hello")))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestGetRegisteredTypes(t *testing.T) {
	d := NewMessageDispatcher()
	require.NoError(t, d.RegisterHandlerFunc("a", func(ctx context.Context, msg contracts.Message) error { return nil }))
	require.NoError(t, d.RegisterHandlerFunc("b", func(ctx context.Context, msg contracts.Message) error { return nil }))

	assert.ElementsMatch(t, []string{"a", "b"}, d.GetRegisteredTypes())
}
