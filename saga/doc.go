// Package saga implements correlation of asynchronously delivered messages to
// long-lived business process instances.
//
// A Saga declares, per consumed message type, which message field supplies
// the business correlation key and whether the message may initiate a new
// instance. The Runtime loads or creates the matching instance, invokes the
// saga's handler logic, persists the result as one conditional store
// operation, and only then applies the declared side effects (publishes and
// timeout requests).
//
// Concurrency: two messages correlating to the same key may be dispatched
// concurrently; the store's per-key optimistic version check serializes
// their updates, and the runtime retries lost races with a full
// reload-and-reapply. No other locking is involved.
//
// Duplicate and out-of-order delivery are expected from the transport. A
// mapped message that matches no active instance and is not an initiator is
// reported and dropped, since redelivery cannot change the outcome.
package saga
