package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/glimte/sagamate-go/messaging"
)

const subscriptionSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	message_type TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	PRIMARY KEY (message_type, endpoint)
);
`

// SubscriptionStore is a durable messaging.SubscriptionStore backed by SQLite
type SubscriptionStore struct {
	db *sql.DB
}

// NewSubscriptionStore creates the subscription store, applying its schema
func NewSubscriptionStore(db *sql.DB) (*SubscriptionStore, error) {
	if _, err := db.Exec(subscriptionSchema); err != nil {
		return nil, fmt.Errorf("failed to create subscription schema: %w", err)
	}
	return &SubscriptionStore{db: db}, nil
}

// AddSubscriber records interest; registering the same pair twice is a no-op
func (s *SubscriptionStore) AddSubscriber(ctx context.Context, messageType string, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (message_type, endpoint) VALUES (?, ?)`,
		messageType, endpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// GetSubscribers returns the endpoints subscribed to a message type
func (s *SubscriptionStore) GetSubscribers(ctx context.Context, messageType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint FROM subscriptions WHERE message_type = ? ORDER BY endpoint`,
		messageType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var endpoints []string
	for rows.Next() {
		var endpoint string
		if err := rows.Scan(&endpoint); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

var _ messaging.SubscriptionStore = (*SubscriptionStore)(nil)
