package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glimte/sagamate-go/saga"
)

const sagaSchema = `
CREATE TABLE IF NOT EXISTS saga_instances (
	id              TEXT PRIMARY KEY,
	saga_type       TEXT NOT NULL,
	correlation_key TEXT NOT NULL,
	data            BLOB NOT NULL,
	version         INTEGER NOT NULL,
	completed       INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

-- the partial unique index is the at-most-one-active-instance invariant
CREATE UNIQUE INDEX IF NOT EXISTS idx_saga_instances_active
	ON saga_instances (saga_type, correlation_key) WHERE completed = 0;
`

// SagaStore is a durable saga.Store backed by SQLite. The conditional UPDATE
// on (id, version) is the per-key serialization point required by the
// runtime's optimistic concurrency.
type SagaStore struct {
	db *sql.DB
}

// NewSagaStore creates the saga store, applying its schema
func NewSagaStore(db *sql.DB) (*SagaStore, error) {
	if _, err := db.Exec(sagaSchema); err != nil {
		return nil, fmt.Errorf("failed to create saga schema: %w", err)
	}
	return &SagaStore{db: db}, nil
}

// Find returns the active instance for a key, or saga.ErrInstanceNotFound
func (s *SagaStore) Find(ctx context.Context, sagaType string, correlationKey string) (*saga.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, saga_type, correlation_key, data, version, completed, created_at, updated_at
		 FROM saga_instances
		 WHERE saga_type = ? AND correlation_key = ? AND completed = 0`,
		sagaType, correlationKey,
	)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saga instance: %w", err)
	}

	return instance, nil
}

// Insert stores a new instance at version 1
func (s *SagaStore) Insert(ctx context.Context, instance *saga.Instance) error {
	now := time.Now().UTC()
	completed := 0
	if instance.Completed {
		completed = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saga_instances (id, saga_type, correlation_key, data, version, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		instance.ID, instance.SagaType, instance.CorrelationKey, []byte(instance.Data),
		completed, instance.CreatedAt.UnixNano(), now.UnixNano(),
	)
	if isUniqueViolation(err) {
		return saga.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert saga instance: %w", err)
	}

	instance.Version = 1
	instance.UpdatedAt = now
	return nil
}

// UpdateIfVersionMatches persists the instance under an optimistic version check
func (s *SagaStore) UpdateIfVersionMatches(ctx context.Context, instance *saga.Instance, expectedVersion int) error {
	return s.conditionalUpdate(ctx, instance, expectedVersion, false)
}

// MarkComplete flips the completion flag under the same version check
func (s *SagaStore) MarkComplete(ctx context.Context, instance *saga.Instance, expectedVersion int) error {
	if err := s.conditionalUpdate(ctx, instance, expectedVersion, true); err != nil {
		return err
	}
	instance.Completed = true
	return nil
}

func (s *SagaStore) conditionalUpdate(ctx context.Context, instance *saga.Instance, expectedVersion int, complete bool) error {
	now := time.Now().UTC()
	completed := 0
	if complete {
		completed = 1
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE saga_instances
		 SET data = ?, version = version + 1, completed = ?, updated_at = ?
		 WHERE id = ? AND version = ? AND completed = 0`,
		[]byte(instance.Data), completed, now.UnixNano(), instance.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return saga.ErrVersionConflict
	}

	instance.Version = expectedVersion + 1
	instance.UpdatedAt = now
	return nil
}

// List returns all instances of a saga type, completed ones included
func (s *SagaStore) List(ctx context.Context, sagaType string) ([]*saga.Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, saga_type, correlation_key, data, version, completed, created_at, updated_at
		 FROM saga_instances WHERE saga_type = ?`,
		sagaType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saga instances: %w", err)
	}
	defer rows.Close()

	var instances []*saga.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saga instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*saga.Instance, error) {
	var instance saga.Instance
	var data []byte
	var completed int
	var createdAt, updatedAt int64

	err := row.Scan(&instance.ID, &instance.SagaType, &instance.CorrelationKey,
		&data, &instance.Version, &completed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	instance.Data = data
	instance.Completed = completed != 0
	instance.CreatedAt = time.Unix(0, createdAt).UTC()
	instance.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &instance, nil
}

var _ saga.Store = (*SagaStore)(nil)
