// Package timeout delivers time-triggered callbacks back into the message
// dispatch path.
//
// A saga handler asks to be woken at a future time; the request is persisted
// as a durable entry before the triggering message is acknowledged. A polling
// loop scans for due entries on a fixed interval and redelivers each as a
// Reply message through the same dispatch path ordinary messages take, then
// removes the entry.
//
// Polling is a deliberate choice: staleness is bounded by the poll interval
// and delivery is at-least-once, which the saga layer already tolerates.
package timeout
