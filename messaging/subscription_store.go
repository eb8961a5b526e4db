package messaging

import (
	"context"
	"sync"
)

// InMemorySubscriptionStore keeps subscriptions in process memory. Not
// durable; single-process deployments and tests only.
type InMemorySubscriptionStore struct {
	subscribers map[string][]string
	mu          sync.RWMutex
}

// NewInMemorySubscriptionStore creates an empty subscription store
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		subscribers: make(map[string][]string),
	}
}

// AddSubscriber records interest; registering the same pair twice is a no-op
func (s *InMemorySubscriptionStore) AddSubscriber(ctx context.Context, messageType string, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subscribers[messageType] {
		if existing == endpoint {
			return nil
		}
	}

	s.subscribers[messageType] = append(s.subscribers[messageType], endpoint)
	return nil
}

// GetSubscribers returns the endpoints subscribed to a message type
func (s *InMemorySubscriptionStore) GetSubscribers(ctx context.Context, messageType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoints := s.subscribers[messageType]
	result := make([]string, len(endpoints))
	copy(result, endpoints)
	return result, nil
}
