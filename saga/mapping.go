package saga

import (
	"fmt"

	"github.com/glimte/sagamate-go/contracts"
)

// KeyFunc extracts the correlation key from an inbound message. Returning an
// empty key signals that the message does not concern this saga and is
// silently discarded.
type KeyFunc func(msg contracts.Message) string

// Mapping is the declarative correlation rule for one message type consumed
// by a saga: which part of the message supplies the correlation key, and
// whether the message may initiate a new instance.
type Mapping struct {
	MessageType string
	Initiates   bool
	Key         KeyFunc
}

// Registration binds a saga to its correlation mappings. Every message type
// the saga consumes must have exactly one mapping.
type Registration struct {
	Saga     Saga
	Mappings []Mapping
}

// Validate checks the registration invariants
func (r *Registration) Validate() error {
	if r.Saga == nil {
		return fmt.Errorf("registration has no saga")
	}
	if r.Saga.SagaType() == "" {
		return fmt.Errorf("saga type cannot be empty")
	}
	if len(r.Mappings) == 0 {
		return fmt.Errorf("saga %s has no correlation mappings", r.Saga.SagaType())
	}

	seen := make(map[string]bool, len(r.Mappings))
	for _, m := range r.Mappings {
		if m.MessageType == "" {
			return fmt.Errorf("saga %s has a mapping without a message type", r.Saga.SagaType())
		}
		if m.Key == nil {
			return fmt.Errorf("saga %s mapping for %s has no key function", r.Saga.SagaType(), m.MessageType)
		}
		if seen[m.MessageType] {
			return fmt.Errorf("saga %s has more than one mapping for %s", r.Saga.SagaType(), m.MessageType)
		}
		seen[m.MessageType] = true
	}

	return nil
}

// MappingFor returns the correlation rule for a message type
func (r *Registration) MappingFor(messageType string) (Mapping, bool) {
	for _, m := range r.Mappings {
		if m.MessageType == messageType {
			return m, true
		}
	}
	return Mapping{}, false
}

// ResolveCorrelationKey applies a correlation mapping to a message. Pure: no
// side effects, and the only failure mode is "no key", which the runtime
// turns into the initiator/late-message decision.
func ResolveCorrelationKey(m Mapping, msg contracts.Message) (string, bool) {
	if m.Key == nil {
		return "", false
	}

	key := m.Key(msg)
	if key == "" {
		return "", false
	}

	return key, true
}
