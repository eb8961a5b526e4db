package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glimte/sagamate-go/timeout"
)

const timeoutSchema = `
CREATE TABLE IF NOT EXISTS timeout_entries (
	id              TEXT PRIMARY KEY,
	saga_type       TEXT NOT NULL,
	correlation_key TEXT NOT NULL,
	due_at          INTEGER NOT NULL,
	custom_data     TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timeout_entries_due_at ON timeout_entries (due_at);
`

// TimeoutStore is a durable timeout.Store backed by SQLite
type TimeoutStore struct {
	db *sql.DB
}

// NewTimeoutStore creates the timeout store, applying its schema
func NewTimeoutStore(db *sql.DB) (*TimeoutStore, error) {
	if _, err := db.Exec(timeoutSchema); err != nil {
		return nil, fmt.Errorf("failed to create timeout schema: %w", err)
	}
	return &TimeoutStore{db: db}, nil
}

// Insert persists a pending entry
func (s *TimeoutStore) Insert(ctx context.Context, entry *timeout.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeout_entries (id, saga_type, correlation_key, due_at, custom_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SagaType, entry.CorrelationKey,
		entry.DueAt.UnixNano(), entry.CustomData, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert timeout entry: %w", err)
	}
	return nil
}

// FindDue returns entries with DueAt at or before now, oldest first
func (s *TimeoutStore) FindDue(ctx context.Context, now time.Time) ([]*timeout.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, saga_type, correlation_key, due_at, custom_data, created_at
		 FROM timeout_entries WHERE due_at <= ? ORDER BY due_at`,
		now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due timeout entries: %w", err)
	}
	defer rows.Close()

	var due []*timeout.Entry
	for rows.Next() {
		var entry timeout.Entry
		var dueAt, createdAt int64
		if err := rows.Scan(&entry.ID, &entry.SagaType, &entry.CorrelationKey,
			&dueAt, &entry.CustomData, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeout entry: %w", err)
		}
		entry.DueAt = time.Unix(0, dueAt).UTC()
		entry.CreatedAt = time.Unix(0, createdAt).UTC()
		due = append(due, &entry)
	}

	return due, rows.Err()
}

// Delete removes a delivered entry. Unknown ids are a no-op.
func (s *TimeoutStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timeout_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete timeout entry: %w", err)
	}
	return nil
}

var _ timeout.Store = (*TimeoutStore)(nil)
