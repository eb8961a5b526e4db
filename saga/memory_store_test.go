package saga

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndFind(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	instance := NewInstance("CheckCreditSaga", "customer-1")
	instance.Data = json.RawMessage(`{"complete":false}`)

	require.NoError(t, store.Insert(ctx, instance))
	assert.Equal(t, 1, instance.Version)

	found, err := store.Find(ctx, "CheckCreditSaga", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, found.ID)
	assert.Equal(t, 1, found.Version)
	assert.JSONEq(t, `{"complete":false}`, string(found.Data))
}

func TestFindUnknownKey(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Find(context.Background(), "CheckCreditSaga", "nope")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestInsertDuplicateActiveKeyFails(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, NewInstance("CheckCreditSaga", "customer-1")))

	err := store.Insert(ctx, NewInstance("CheckCreditSaga", "customer-1"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestSameKeyDifferentSagaTypesCoexist(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, NewInstance("CheckCreditSaga", "customer-1")))
	require.NoError(t, store.Insert(ctx, NewInstance("CheckLegalSaga", "customer-1")))
}

func TestUpdateIfVersionMatches(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	instance := NewInstance("CheckCreditSaga", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))

	instance.Data = json.RawMessage(`{"complete":true}`)
	require.NoError(t, store.UpdateIfVersionMatches(ctx, instance, 1))
	assert.Equal(t, 2, instance.Version)

	// stale writer loses
	stale := instance.Clone()
	err := store.UpdateIfVersionMatches(ctx, stale, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMarkCompleteHidesInstanceFromFind(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	instance := NewInstance("CheckCreditSaga", "customer-1")
	require.NoError(t, store.Insert(ctx, instance))
	require.NoError(t, store.MarkComplete(ctx, instance, 1))

	_, err := store.Find(ctx, "CheckCreditSaga", "customer-1")
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	// completed record stays observable
	all, err := store.List(ctx, "CheckCreditSaga")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Completed)
}

func TestMarkCompleteFreesTheKeyForANewInstance(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := NewInstance("CheckCreditSaga", "customer-1")
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.MarkComplete(ctx, first, 1))

	second := NewInstance("CheckCreditSaga", "customer-1")
	require.NoError(t, store.Insert(ctx, second))

	found, err := store.Find(ctx, "CheckCreditSaga", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestFindReturnsIndependentCopy(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	instance := NewInstance("CheckCreditSaga", "customer-1")
	instance.Data = json.RawMessage(`{"n":1}`)
	require.NoError(t, store.Insert(ctx, instance))

	found, err := store.Find(ctx, "CheckCreditSaga", "customer-1")
	require.NoError(t, err)
	found.Data = json.RawMessage(`{"n":99}`)

	again, err := store.Find(ctx, "CheckCreditSaga", "customer-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(again.Data))
}
