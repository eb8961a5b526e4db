package contracts

import (
	"encoding/json"
)

// Envelope wraps messages for transport. The body is an opaque JSON payload;
// Type is the tag used to resolve the concrete message type on receive.
type Envelope struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Source        string                 `json:"source,omitempty"`
	Headers       map[string]interface{} `json:"headers,omitempty"`
	Body          json.RawMessage        `json:"body"`
}
