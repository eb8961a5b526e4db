package onboarding

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/glimte/sagamate-go/messaging"
	"github.com/glimte/sagamate-go/persistence/sqlite"
	"github.com/glimte/sagamate-go/saga"
	"github.com/glimte/sagamate-go/timeout"
)

// SqliteStores is a durable StoreProvider keeping one database file per
// endpoint under a directory, plus one for the broker's subscriptions. The
// per-endpoint files matter: each timeout service polls only its own
// schedule, so endpoints cannot consume each other's entries.
type SqliteStores struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSqliteStores creates a provider rooted at dir
func NewSqliteStores(dir string) *SqliteStores {
	return &SqliteStores{
		dir: dir,
		dbs: make(map[string]*sql.DB),
	}
}

func (s *SqliteStores) open(name string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, exists := s.dbs[name]; exists {
		return db, nil
	}

	db, err := sqlite.Open(filepath.Join(s.dir, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database for %s: %w", name, err)
	}
	s.dbs[name] = db
	return db, nil
}

// SagaStore returns the endpoint's durable saga store
func (s *SqliteStores) SagaStore(endpoint string) (saga.Store, error) {
	db, err := s.open(endpoint)
	if err != nil {
		return nil, err
	}
	return sqlite.NewSagaStore(db)
}

// TimeoutStore returns the endpoint's durable timeout schedule
func (s *SqliteStores) TimeoutStore(endpoint string) (timeout.Store, error) {
	db, err := s.open(endpoint)
	if err != nil {
		return nil, err
	}
	return sqlite.NewTimeoutStore(db)
}

// SubscriptionStore returns the durable broker subscription table
func (s *SqliteStores) SubscriptionStore() (messaging.SubscriptionStore, error) {
	db, err := s.open("broker")
	if err != nil {
		return nil, err
	}
	return sqlite.NewSubscriptionStore(db)
}

// Close closes every opened database
func (s *SqliteStores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database %s: %w", name, err)
		}
	}
	s.dbs = make(map[string]*sql.DB)
	return firstErr
}

var _ StoreProvider = (*SqliteStores)(nil)
