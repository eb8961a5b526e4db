package serialization

import (
	"fmt"
	"sync"

	"github.com/glimte/sagamate-go/contracts"
)

// TypeRegistry manages message type registrations for serialization
type TypeRegistry interface {
	// Register registers a factory for a message type name
	Register(typeName string, factory func() contracts.Message) error

	// CreateInstance creates a new, empty instance of the registered type
	CreateInstance(typeName string) (contracts.Message, error)

	// IsRegistered checks if a type is registered
	IsRegistered(typeName string) bool

	// ListTypes returns all registered type names
	ListTypes() []string
}

// DefaultTypeRegistry is the default implementation of TypeRegistry
type DefaultTypeRegistry struct {
	factories map[string]func() contracts.Message
	mu        sync.RWMutex
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		factories: make(map[string]func() contracts.Message),
	}
}

// Register registers a factory for a message type name
func (r *DefaultTypeRegistry) Register(typeName string, factory func() contracts.Message) error {
	if typeName == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Duplicate registration of the same name is ignored so packages can
	// register their messages unconditionally at construction time.
	r.factories[typeName] = factory

	return nil
}

// CreateInstance creates a new, empty instance of the registered type
func (r *DefaultTypeRegistry) CreateInstance(typeName string) (contracts.Message, error) {
	r.mu.RLock()
	factory, exists := r.factories[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("message type not registered: %s", typeName)
	}

	return factory(), nil
}

// IsRegistered checks if a type is registered
func (r *DefaultTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[typeName]
	return exists
}

// ListTypes returns all registered type names
func (r *DefaultTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for typeName := range r.factories {
		types = append(types, typeName)
	}
	return types
}

// Global type registry for message serialization
var globalRegistry = NewTypeRegistry()

// Register registers a message factory with the global type registry
func Register(typeName string, factory func() contracts.Message) error {
	return globalRegistry.Register(typeName, factory)
}

// GetTypeRegistry returns the global type registry
func GetTypeRegistry() TypeRegistry {
	return globalRegistry
}
