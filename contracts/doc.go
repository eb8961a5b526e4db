// Package contracts provides the core message types and interfaces for the sagamate framework.
//
// This package defines the base contracts for messages that flow through the system:
//   - Message: Base interface for all messages
//   - Event: Represents something that has happened
//   - Envelope: Transport wrapper carrying an opaque payload plus a type tag
//
// All message types are designed to be serializable so that independently
// deployed services can exchange them over any transport.
package contracts
