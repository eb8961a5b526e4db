package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startCounting struct {
	contracts.BaseMessage
	Key string `json:"key"`
}

func newStartCounting(key string) *startCounting {
	return &startCounting{BaseMessage: contracts.NewBaseMessage("startCounting"), Key: key}
}

type bumpCounter struct {
	contracts.BaseMessage
	Key string `json:"key"`
}

func newBumpCounter(key string) *bumpCounter {
	return &bumpCounter{BaseMessage: contracts.NewBaseMessage("bumpCounter"), Key: key}
}

type counterData struct {
	Count int `json:"count"`
}

// counterSaga counts messages and completes when the count reaches completeAt
type counterSaga struct {
	completeAt int
	failOn     string
	publishOn  string
	timeoutOn  string
}

func (s *counterSaga) SagaType() string { return "CounterSaga" }
func (s *counterSaga) NewData() Data    { return &counterData{} }

func (s *counterSaga) Handle(ctx context.Context, exec *Execution, msg contracts.Message) error {
	if msg.GetType() == s.failOn {
		return errors.New("simulated handler failure")
	}

	data := exec.Data().(*counterData)
	data.Count++

	if msg.GetType() == s.publishOn {
		exec.Publish(newBumpCounter(exec.CorrelationKey()))
	}
	if msg.GetType() == s.timeoutOn {
		exec.RequestTimeout(10*time.Millisecond, "wake up")
	}
	if s.completeAt > 0 && data.Count >= s.completeAt {
		exec.MarkComplete()
	}

	return nil
}

func counterRegistration(s *counterSaga) *Registration {
	return &Registration{
		Saga: s,
		Mappings: []Mapping{
			{MessageType: "startCounting", Initiates: true, Key: func(m contracts.Message) string { return m.(*startCounting).Key }},
			{MessageType: "bumpCounter", Key: func(m contracts.Message) string { return m.(*bumpCounter).Key }},
		},
	}
}

// capturingPublisher records published messages
type capturingPublisher struct {
	mu       sync.Mutex
	messages []contracts.Message
	fail     bool
}

func (p *capturingPublisher) Publish(ctx context.Context, msg contracts.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("publish failed")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// capturingScheduler records timeout requests
type capturingScheduler struct {
	mu       sync.Mutex
	requests []string
}

func (s *capturingScheduler) RequestTimeout(ctx context.Context, sagaType, correlationKey string, dueAt time.Time, customData string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, sagaType+"/"+correlationKey+"/"+customData)
	return nil
}

func TestInitiatorCreatesInstance(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))

	require.NoError(t, runtime.Dispatch(context.Background(), newStartCounting("k1")))

	instance, err := store.Find(context.Background(), "CounterSaga", "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, instance.Version)
	assert.JSONEq(t, `{"count":1}`, string(instance.Data))
}

func TestCorrelatedMessageUpdatesExistingInstance(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))
	require.NoError(t, runtime.Dispatch(ctx, newBumpCounter("k1")))

	instance, err := store.Find(ctx, "CounterSaga", "k1")
	require.NoError(t, err)
	assert.Equal(t, 2, instance.Version)
	assert.JSONEq(t, `{"count":2}`, string(instance.Data))
}

func TestDuplicateInitiatorJoinsExistingInstance(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))
	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))

	all, err := store.List(ctx, "CounterSaga")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `{"count":2}`, string(all[0].Data))
}

func TestUncorrelatedNonInitiatorIsDropped(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))

	// no instance for k1 exists and bumpCounter is not an initiator
	err := runtime.Dispatch(context.Background(), newBumpCounter("k1"))
	assert.NoError(t, err)

	all, listErr := store.List(context.Background(), "CounterSaga")
	require.NoError(t, listErr)
	assert.Empty(t, all)
}

func TestUnmappedMessageTypeIsIgnored(t *testing.T) {
	runtime := NewRuntime(NewInMemoryStore(), &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))

	msg := &keyedMessage{BaseMessage: contracts.NewBaseMessage("keyedMessage"), Key: "k1"}
	assert.NoError(t, runtime.Dispatch(context.Background(), msg))
}

func TestHandlerFailureLeavesNothingBehind(t *testing.T) {
	store := NewInMemoryStore()
	publisher := &capturingPublisher{}
	runtime := NewRuntime(store, publisher)
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{failOn: "bumpCounter", publishOn: "bumpCounter"})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))

	err := runtime.Dispatch(ctx, newBumpCounter("k1"))
	assert.Error(t, err)

	// state unchanged, no side effects leaked
	instance, findErr := store.Find(ctx, "CounterSaga", "k1")
	require.NoError(t, findErr)
	assert.Equal(t, 1, instance.Version)
	assert.JSONEq(t, `{"count":1}`, string(instance.Data))
	assert.Zero(t, publisher.count())
}

func TestSideEffectsApplyOnlyAfterPersistence(t *testing.T) {
	store := NewInMemoryStore()
	publisher := &capturingPublisher{}
	scheduler := &capturingScheduler{}
	runtime := NewRuntime(store, publisher,
		WithTimeoutScheduler(scheduler),
	)
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{publishOn: "startCounting", timeoutOn: "startCounting"})))

	require.NoError(t, runtime.Dispatch(context.Background(), newStartCounting("k1")))

	assert.Equal(t, 1, publisher.count())
	assert.Equal(t, []string{"CounterSaga/k1/wake up"}, scheduler.requests)
}

func TestCompletionHidesInstanceAndToleratesStragglers(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{})
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{completeAt: 2})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))
	require.NoError(t, runtime.Dispatch(ctx, newBumpCounter("k1")))

	_, err := store.Find(ctx, "CounterSaga", "k1")
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	// a straggler after completion is dropped without error or state change
	require.NoError(t, runtime.Dispatch(ctx, newBumpCounter("k1")))

	all, listErr := store.List(ctx, "CounterSaga")
	require.NoError(t, listErr)
	require.Len(t, all, 1)
	assert.True(t, all[0].Completed)
	assert.JSONEq(t, `{"count":2}`, string(all[0].Data))
}

func TestConcurrentCorrelatedUpdatesConverge(t *testing.T) {
	store := NewInMemoryStore()
	runtime := NewRuntime(store, &capturingPublisher{},
		WithMaxAttempts(250),
	)
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))

	const bumps = 25
	var wg sync.WaitGroup
	errs := make(chan error, bumps)
	for i := 0; i < bumps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runtime.Dispatch(ctx, newBumpCounter("k1"))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	instance, err := store.Find(ctx, "CounterSaga", "k1")
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"count":%d}`, bumps+1), string(instance.Data))
}

func TestExhaustedConflictsReturnTheError(t *testing.T) {
	store := &alwaysConflictingStore{inner: NewInMemoryStore()}
	runtime := NewRuntime(store, &capturingPublisher{}, WithMaxAttempts(3))
	require.NoError(t, runtime.Register(counterRegistration(&counterSaga{})))
	ctx := context.Background()

	require.NoError(t, runtime.Dispatch(ctx, newStartCounting("k1")))

	store.conflict = true
	err := runtime.Dispatch(ctx, newBumpCounter("k1"))
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 3, store.updates)
}

// alwaysConflictingStore forces UpdateIfVersionMatches to conflict on demand
type alwaysConflictingStore struct {
	inner    *InMemoryStore
	conflict bool
	updates  int
}

func (s *alwaysConflictingStore) Find(ctx context.Context, sagaType, key string) (*Instance, error) {
	return s.inner.Find(ctx, sagaType, key)
}

func (s *alwaysConflictingStore) Insert(ctx context.Context, instance *Instance) error {
	return s.inner.Insert(ctx, instance)
}

func (s *alwaysConflictingStore) UpdateIfVersionMatches(ctx context.Context, instance *Instance, expectedVersion int) error {
	if s.conflict {
		s.updates++
		return ErrVersionConflict
	}
	return s.inner.UpdateIfVersionMatches(ctx, instance, expectedVersion)
}

func (s *alwaysConflictingStore) MarkComplete(ctx context.Context, instance *Instance, expectedVersion int) error {
	return s.inner.MarkComplete(ctx, instance, expectedVersion)
}

func (s *alwaysConflictingStore) List(ctx context.Context, sagaType string) ([]*Instance, error) {
	return s.inner.List(ctx, sagaType)
}
