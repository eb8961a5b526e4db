package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/glimte/sagamate-go/saga"
	"github.com/glimte/sagamate-go/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testInstance(sagaType string, key string) *saga.Instance {
	instance := saga.NewInstance(sagaType, key)
	instance.Data = json.RawMessage(`{"count":0}`)
	return instance
}

func TestSagaStoreInsertAndFind(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	instance := testInstance("creditCheck", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))
	assert.Equal(t, 1, instance.Version)

	found, err := store.Find(ctx, "creditCheck", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, found.ID)
	assert.Equal(t, 1, found.Version)
	assert.JSONEq(t, `{"count":0}`, string(found.Data))
	assert.False(t, found.Completed)
}

func TestSagaStoreFindUnknownKey(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)

	_, err = store.Find(context.Background(), "creditCheck", "nobody")
	assert.ErrorIs(t, err, saga.ErrInstanceNotFound)
}

func TestSagaStoreRejectsSecondActiveInstance(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testInstance("creditCheck", "customer-1")))
	err = store.Insert(ctx, testInstance("creditCheck", "customer-1"))
	assert.ErrorIs(t, err, saga.ErrDuplicateKey)

	// same key under a different saga type is a different instance
	require.NoError(t, store.Insert(ctx, testInstance("legalCheck", "customer-1")))
}

func TestSagaStoreVersionedUpdate(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	instance := testInstance("creditCheck", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))

	instance.Data = json.RawMessage(`{"count":1}`)
	require.NoError(t, store.UpdateIfVersionMatches(ctx, instance, 1))
	assert.Equal(t, 2, instance.Version)

	// a stale writer loses
	stale := instance.Clone()
	stale.Data = json.RawMessage(`{"count":99}`)
	err = store.UpdateIfVersionMatches(ctx, stale, 1)
	assert.ErrorIs(t, err, saga.ErrVersionConflict)

	found, err := store.Find(ctx, "creditCheck", "customer-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, string(found.Data))
	assert.Equal(t, 2, found.Version)
}

func TestSagaStoreMarkCompleteFreesTheKey(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	instance := testInstance("creditCheck", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))
	require.NoError(t, store.MarkComplete(ctx, instance, 1))
	assert.True(t, instance.Completed)

	_, err = store.Find(ctx, "creditCheck", "customer-1")
	assert.ErrorIs(t, err, saga.ErrInstanceNotFound)

	// the partial unique index only guards active instances
	require.NoError(t, store.Insert(ctx, testInstance("creditCheck", "customer-1")))

	instances, err := store.List(ctx, "creditCheck")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestSagaStoreMarkCompleteChecksVersion(t *testing.T) {
	store, err := NewSagaStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	instance := testInstance("creditCheck", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))

	err = store.MarkComplete(ctx, instance.Clone(), 7)
	assert.ErrorIs(t, err, saga.ErrVersionConflict)
}

func TestSagaStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	store, err := NewSagaStore(db)
	require.NoError(t, err)
	instance := testInstance("creditCheck", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	store, err = NewSagaStore(db)
	require.NoError(t, err)

	found, err := store.Find(ctx, "creditCheck", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, found.ID)
}

func TestTimeoutStoreFindDueOrdering(t *testing.T) {
	store, err := NewTimeoutStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	late := timeout.NewEntry("creditCheck", "customer-2", now.Add(-time.Second), "")
	early := timeout.NewEntry("creditCheck", "customer-1", now.Add(-time.Minute), "")
	future := timeout.NewEntry("creditCheck", "customer-3", now.Add(time.Hour), "")
	for _, entry := range []*timeout.Entry{late, early, future} {
		require.NoError(t, store.Insert(ctx, entry))
	}

	due, err := store.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)
}

func TestTimeoutStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewTimeoutStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	entry := timeout.NewEntry("creditCheck", "customer-1", time.Now().UTC(), "simulatedCheckDone")
	require.NoError(t, store.Insert(ctx, entry))

	require.NoError(t, store.Delete(ctx, entry.ID))
	require.NoError(t, store.Delete(ctx, entry.ID))

	due, err := store.FindDue(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTimeoutStoreRoundTripsCustomData(t *testing.T) {
	store, err := NewTimeoutStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := timeout.NewEntry("legalCheck", "customer-1", now.Add(-time.Second), "legalCheckDone")
	require.NoError(t, store.Insert(ctx, entry))

	due, err := store.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "legalCheck", due[0].SagaType)
	assert.Equal(t, "customer-1", due[0].CorrelationKey)
	assert.Equal(t, "legalCheckDone", due[0].CustomData)
}

func TestSubscriptionStoreIsIdempotent(t *testing.T) {
	store, err := NewSubscriptionStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AddSubscriber(ctx, "CustomerCreated", "caf"))
	require.NoError(t, store.AddSubscriber(ctx, "CustomerCreated", "legal"))
	require.NoError(t, store.AddSubscriber(ctx, "CustomerCreated", "caf"))

	endpoints, err := store.GetSubscribers(ctx, "CustomerCreated")
	require.NoError(t, err)
	assert.Equal(t, []string{"caf", "legal"}, endpoints)

	none, err := store.GetSubscribers(ctx, "UnknownMessage")
	require.NoError(t, err)
	assert.Empty(t, none)
}
