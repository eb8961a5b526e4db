package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store error conditions
var (
	// ErrInstanceNotFound indicates no active instance matches the key
	ErrInstanceNotFound = errors.New("saga instance not found")

	// ErrDuplicateKey indicates an active instance already exists for the key
	ErrDuplicateKey = errors.New("saga instance already exists for correlation key")

	// ErrVersionConflict indicates a concurrent update won the race
	ErrVersionConflict = errors.New("saga instance version conflict")
)

// Instance is the stored representation of one saga occurrence. The data bag
// is kept as an opaque JSON document so any store can persist it without
// knowing the workflow types.
type Instance struct {
	ID             string          `json:"id"`
	SagaType       string          `json:"sagaType"`
	CorrelationKey string          `json:"correlationKey"`
	Data           json.RawMessage `json:"data"`
	Version        int             `json:"version"`
	Completed      bool            `json:"completed"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewInstance creates an unsaved instance for a correlation key
func NewInstance(sagaType string, correlationKey string) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:             uuid.New().String(),
		SagaType:       sagaType,
		CorrelationKey: correlationKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns an independent copy of the instance
func (i *Instance) Clone() *Instance {
	clone := *i
	clone.Data = make(json.RawMessage, len(i.Data))
	copy(clone.Data, i.Data)
	return &clone
}

// Store is the durable mapping from (saga type, correlation key) to instance
// state. Invariant: at most one non-completed instance exists per pair; the
// per-key conditional update is the only serialization point in the system.
type Store interface {
	// Find returns the active (non-completed) instance for a key, or
	// ErrInstanceNotFound
	Find(ctx context.Context, sagaType string, correlationKey string) (*Instance, error)

	// Insert stores a new instance at version 1. Returns ErrDuplicateKey if
	// an active instance already holds the correlation key.
	Insert(ctx context.Context, instance *Instance) error

	// UpdateIfVersionMatches persists the instance if the stored version
	// still equals expectedVersion, bumping it by one. Returns
	// ErrVersionConflict when a concurrent update won.
	UpdateIfVersionMatches(ctx context.Context, instance *Instance, expectedVersion int) error

	// MarkComplete flips the completion flag under the same version check.
	// The record stays observable but no longer matches Find.
	MarkComplete(ctx context.Context, instance *Instance, expectedVersion int) error

	// List returns all instances of a saga type, completed ones included
	List(ctx context.Context, sagaType string) ([]*Instance, error)
}
