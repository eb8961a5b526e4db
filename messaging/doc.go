// Package messaging provides the transport-facing capabilities of the
// sagamate framework.
//
// The main pieces:
//   - Transport: boundary interface for moving envelopes between endpoints,
//     assumed at-least-once with best-effort ordering
//   - Router: publish/subscribe fan-out backed by a SubscriptionStore, with
//     per-endpoint delivery independence
//   - MessageDispatcher: static registration table routing inbound messages
//     to handlers, with middleware support
//   - ServiceProcess: one deployable unit bound to an endpoint address, with
//     a worker pool and graceful shutdown
//
// Thread safety: all types in this package are safe for concurrent use.
package messaging
