package saga

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps saga instances in process memory. Not durable; for
// development and tests. The mutex stands in for the conditional update a
// durable store performs, so the version-conflict semantics are identical.
type InMemoryStore struct {
	mu     sync.Mutex
	active map[string]*Instance // (sagaType, correlationKey) -> active instance
	byID   map[string]*Instance // all instances, completed included
}

// NewInMemoryStore creates an empty in-memory saga store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		active: make(map[string]*Instance),
		byID:   make(map[string]*Instance),
	}
}

func activeKey(sagaType string, correlationKey string) string {
	return sagaType + "\x00" + correlationKey
}

// Find returns the active instance for a key, or ErrInstanceNotFound
func (s *InMemoryStore) Find(ctx context.Context, sagaType string, correlationKey string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, exists := s.active[activeKey(sagaType, correlationKey)]
	if !exists {
		return nil, ErrInstanceNotFound
	}

	return instance.Clone(), nil
}

// Insert stores a new instance at version 1
func (s *InMemoryStore) Insert(ctx context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey(instance.SagaType, instance.CorrelationKey)
	if !instance.Completed {
		if _, exists := s.active[key]; exists {
			return ErrDuplicateKey
		}
	}

	stored := instance.Clone()
	stored.Version = 1
	stored.UpdatedAt = time.Now().UTC()

	s.byID[stored.ID] = stored
	if !stored.Completed {
		s.active[key] = stored
	}

	instance.Version = stored.Version
	return nil
}

// UpdateIfVersionMatches persists the instance under an optimistic version check
func (s *InMemoryStore) UpdateIfVersionMatches(ctx context.Context, instance *Instance, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.byID[instance.ID]
	if !exists {
		return ErrInstanceNotFound
	}
	if stored.Version != expectedVersion || stored.Completed {
		return ErrVersionConflict
	}

	stored.Data = append(stored.Data[:0:0], instance.Data...)
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()

	instance.Version = stored.Version
	return nil
}

// MarkComplete flips the completion flag under the same version check
func (s *InMemoryStore) MarkComplete(ctx context.Context, instance *Instance, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.byID[instance.ID]
	if !exists {
		return ErrInstanceNotFound
	}
	if stored.Version != expectedVersion || stored.Completed {
		return ErrVersionConflict
	}

	stored.Data = append(stored.Data[:0:0], instance.Data...)
	stored.Version = expectedVersion + 1
	stored.Completed = true
	stored.UpdatedAt = time.Now().UTC()

	delete(s.active, activeKey(stored.SagaType, stored.CorrelationKey))

	instance.Version = stored.Version
	instance.Completed = true
	return nil
}

// List returns all instances of a saga type, completed ones included
func (s *InMemoryStore) List(ctx context.Context, sagaType string) ([]*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Instance
	for _, instance := range s.byID {
		if instance.SagaType == sagaType {
			result = append(result, instance.Clone())
		}
	}

	return result, nil
}

var _ Store = (*InMemoryStore)(nil)
