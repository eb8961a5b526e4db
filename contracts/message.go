package contracts

import (
	"time"
)

// Message is the base interface for everything that crosses the transport
type Message interface {
	GetID() string
	GetTimestamp() time.Time
	GetType() string
	GetCorrelationID() string
	SetCorrelationID(correlationID string)
}

// Event represents something that has happened in one of the services
type Event interface {
	Message
	GetAggregateID() string
}
