package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save upserts a session record.
	Save(ctx context.Context, session *types.Session) error

	// Get returns the session or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*types.Session, error)

	// List returns a snapshot of all sessions.
	List(ctx context.Context) ([]*types.Session, error)

	// Delete removes a session record. Absence is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend" json:"backend"`

	// DSN is the database connection string for sqlite/postgres backends.
	DSN string `yaml:"dsn" json:"dsn"`
}

// DefaultStoreConfig returns an in-memory store configuration.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Backend: "memory"}
}

// NewStore creates a session store from config.
func NewStore(config *StoreConfig, logger *zap.Logger) (Store, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	switch config.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		return NewGormStore(config, logger)
	default:
		return nil, fmt.Errorf("unsupported session store backend: %s", config.Backend)
	}
}

// MemoryStore is an in-memory session store for single-process deployments
// and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.Session)}
}

// Save upserts a session record.
func (s *MemoryStore) Save(_ context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return types.NewError(types.ErrInvalidArgument, "session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns the session or a NOT_FOUND error.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}
	return session.Clone(), nil
}

// List returns a snapshot of all sessions ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		result = append(result, session.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a session record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
