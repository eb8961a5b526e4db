package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBaseMessage(t *testing.T) {
	msg := NewBaseMessage("TestMessage")

	assert.NotEmpty(t, msg.GetID())
	assert.Equal(t, "TestMessage", msg.GetType())
	assert.WithinDuration(t, time.Now().UTC(), msg.GetTimestamp(), time.Second)
	assert.Empty(t, msg.GetCorrelationID())
}

func TestBaseMessageCorrelationID(t *testing.T) {
	msg := NewBaseMessage("TestMessage")
	msg.SetCorrelationID("corr-123")

	assert.Equal(t, "corr-123", msg.GetCorrelationID())
}

func TestNewBaseEvent(t *testing.T) {
	evt := NewBaseEvent("CustomerCreated", "customer-42")

	assert.Equal(t, "CustomerCreated", evt.GetType())
	assert.Equal(t, "customer-42", evt.GetAggregateID())
	assert.NotEmpty(t, evt.GetID())
}

func TestMessageIDsAreUnique(t *testing.T) {
	a := NewBaseMessage("TestMessage")
	b := NewBaseMessage("TestMessage")

	assert.NotEqual(t, a.GetID(), b.GetID())
}
