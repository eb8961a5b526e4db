package saga

import (
	"context"
	"time"

	"github.com/glimte/sagamate-go/contracts"
)

// Data is the workflow-specific mutable state bag carried by a saga instance.
// Implementations must be JSON-serializable; the runtime round-trips them
// through the store between messages.
type Data interface{}

// Saga defines a long-running business process advanced by correlated
// messages. Implementations hold no per-instance state; everything mutable
// lives in the Data bag handed to Handle.
type Saga interface {
	// SagaType names the saga. Instances are scoped per saga type.
	SagaType() string

	// NewData returns a fresh, empty data bag for a new instance
	NewData() Data

	// Handle advances the instance for one inbound message. Side effects
	// (publishes, timeout requests, completion) are declared on the
	// Execution and applied by the runtime only after the resulting state
	// has been persisted.
	Handle(ctx context.Context, exec *Execution, msg contracts.Message) error
}

// TimeoutRequest asks the timeout service to wake the instance later
type TimeoutRequest struct {
	Delay      time.Duration
	CustomData string
}

// Execution is the per-message handling context. It carries the loaded data
// bag and collects the side effects the handler declares. An Execution is
// owned by a single dispatch and must not be retained after Handle returns.
type Execution struct {
	sagaType       string
	correlationKey string
	data           Data
	created        bool
	completed      bool
	publishes      []contracts.Message
	timeouts       []TimeoutRequest
}

// Data returns the instance's typed data bag
func (e *Execution) Data() Data {
	return e.data
}

// CorrelationKey returns the business key this instance is correlated on
func (e *Execution) CorrelationKey() string {
	return e.correlationKey
}

// IsNew reports whether this message initiated a new instance
func (e *Execution) IsNew() bool {
	return e.created
}

// Publish declares an outbound message, sent after successful persistence
func (e *Execution) Publish(msg contracts.Message) {
	e.publishes = append(e.publishes, msg)
}

// RequestTimeout asks to be woken after delay with the given custom data.
// The request is registered after successful persistence.
func (e *Execution) RequestTimeout(delay time.Duration, customData string) {
	e.timeouts = append(e.timeouts, TimeoutRequest{Delay: delay, CustomData: customData})
}

// MarkComplete declares the workflow finished. The instance is marked
// completed in the store and no longer matches future correlated messages.
func (e *Execution) MarkComplete() {
	e.completed = true
}
