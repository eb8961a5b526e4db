package timeout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a durable request to wake a saga instance at or after DueAt
type Entry struct {
	ID             string    `json:"id"`
	SagaType       string    `json:"sagaType"`
	CorrelationKey string    `json:"correlationKey"`
	DueAt          time.Time `json:"dueAt"`
	CustomData     string    `json:"customData,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewEntry creates a timeout entry
func NewEntry(sagaType string, correlationKey string, dueAt time.Time, customData string) *Entry {
	return &Entry{
		ID:             uuid.New().String(),
		SagaType:       sagaType,
		CorrelationKey: correlationKey,
		DueAt:          dueAt,
		CustomData:     customData,
		CreatedAt:      time.Now().UTC(),
	}
}

// Store is the durable schedule of pending timeout entries
type Store interface {
	// Insert persists a pending entry
	Insert(ctx context.Context, entry *Entry) error

	// FindDue returns entries with DueAt at or before now, oldest first
	FindDue(ctx context.Context, now time.Time) ([]*Entry, error)

	// Delete removes a delivered entry. Deleting an unknown id is a no-op,
	// so redelivered deletions are harmless.
	Delete(ctx context.Context, id string) error
}

// InMemoryStore keeps timeout entries in process memory. Not durable; for
// development and tests.
type InMemoryStore struct {
	entries map[string]*Entry
	mu      sync.Mutex
}

// NewInMemoryStore creates an empty in-memory timeout store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Insert persists a pending entry
func (s *InMemoryStore) Insert(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

// FindDue returns entries with DueAt at or before now, oldest first
func (s *InMemoryStore) FindDue(ctx context.Context, now time.Time) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Entry
	for _, entry := range s.entries {
		if !entry.DueAt.After(now) {
			copied := *entry
			due = append(due, &copied)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	return due, nil
}

// Delete removes a delivered entry
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Count returns the number of pending entries
func (s *InMemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

var _ Store = (*InMemoryStore)(nil)
