package serialization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glimte/sagamate-go/contracts"
)

// EnvelopeSerializer converts messages to and from transport envelopes.
// The envelope body is plain JSON; the envelope type tag drives
// deserialization through a TypeRegistry.
type EnvelopeSerializer struct {
	registry TypeRegistry
}

// SerializerOption configures the EnvelopeSerializer
type SerializerOption func(*EnvelopeSerializer)

// WithRegistry sets the type registry used for deserialization
func WithRegistry(registry TypeRegistry) SerializerOption {
	return func(s *EnvelopeSerializer) {
		s.registry = registry
	}
}

// NewEnvelopeSerializer creates a serializer backed by the global registry
func NewEnvelopeSerializer(options ...SerializerOption) *EnvelopeSerializer {
	s := &EnvelopeSerializer{
		registry: GetTypeRegistry(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Serialize wraps a message in a transport envelope
func (s *EnvelopeSerializer) Serialize(msg contracts.Message) (*contracts.Envelope, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message %s: %w", msg.GetID(), err)
	}

	return &contracts.Envelope{
		ID:            msg.GetID(),
		Type:          msg.GetType(),
		Timestamp:     msg.GetTimestamp().Format(time.RFC3339Nano),
		CorrelationID: msg.GetCorrelationID(),
		Body:          body,
	}, nil
}

// Deserialize reconstructs the typed message carried by an envelope
func (s *EnvelopeSerializer) Deserialize(envelope *contracts.Envelope) (contracts.Message, error) {
	if envelope == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}

	msg, err := s.registry.CreateInstance(envelope.Type)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(envelope.Body, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s body: %w", envelope.Type, err)
	}

	return msg, nil
}
