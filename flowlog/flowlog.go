// Package flowlog provides an injectable observer for recording what happened
// to each business correlation key while a workflow runs. Handlers append
// human-readable entries; tests and operators read the per-key sequences back.
package flowlog

import (
	"fmt"
	"sync"
)

// FlowLog records an append-only sequence of entries per correlation key.
// Implementations must be safe for concurrent use.
type FlowLog interface {
	// Append records an entry for the given key
	Append(key string, format string, args ...interface{})

	// Entries returns a snapshot of the entries recorded for a key
	Entries(key string) []string

	// Keys returns all keys that have at least one entry
	Keys() []string
}

// InMemoryFlowLog is a thread-safe in-process FlowLog
type InMemoryFlowLog struct {
	entries map[string][]string
	mu      sync.RWMutex
}

// NewInMemoryFlowLog creates an empty in-memory flow log
func NewInMemoryFlowLog() *InMemoryFlowLog {
	return &InMemoryFlowLog{
		entries: make(map[string][]string),
	}
}

// Append records an entry for the given key
func (l *InMemoryFlowLog) Append(key string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = append(l.entries[key], fmt.Sprintf(format, args...))
}

// Entries returns a snapshot of the entries recorded for a key
func (l *InMemoryFlowLog) Entries(key string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.entries[key]
	snapshot := make([]string, len(entries))
	copy(snapshot, entries)
	return snapshot
}

// Keys returns all keys that have at least one entry
func (l *InMemoryFlowLog) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	return keys
}

// NopFlowLog discards everything. Useful when no observer is wired in.
type NopFlowLog struct{}

// Append does nothing
func (NopFlowLog) Append(key string, format string, args ...interface{}) {}

// Entries returns nil
func (NopFlowLog) Entries(key string) []string { return nil }

// Keys returns nil
func (NopFlowLog) Keys() []string { return nil }
