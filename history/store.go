package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/oneagent/coordination/types"
)

// Store is the append-only, per-session ordered log of messages. Accepted
// messages carry contiguous sequence numbers starting at 1; rejected
// messages go to a separate audit log and never appear in the main read
// path.
type Store interface {
	// Append records an accepted message. The message's sequence number
	// must be exactly one past the current tail for its session.
	Append(ctx context.Context, msg *types.Message) error

	// Read returns accepted messages for the session with sequence numbers
	// strictly greater than sinceSeq, in ascending sequence order. Zero
	// sinceSeq reads the whole history. Unknown sessions yield an empty
	// result.
	Read(ctx context.Context, sessionID string, sinceSeq uint64) ([]*types.Message, error)

	// LastSeq returns the highest assigned sequence number for the
	// session, zero when the session has no history.
	LastSeq(ctx context.Context, sessionID string) (uint64, error)

	// AppendRejection records a rejected message in the audit log. The
	// message carries no sequence number.
	AppendRejection(ctx context.Context, msg *types.Message) error

	// Rejections returns the rejection audit log for the session in
	// arrival order.
	Rejections(ctx context.Context, sessionID string) ([]*types.Message, error)

	// Close releases store resources.
	Close() error
}

// Config selects and configures the history backend.
type Config struct {
	// Backend is one of "memory", "redis".
	Backend string `yaml:"backend" json:"backend"`

	// Redis configures the redis backend.
	Redis *RedisConfig `yaml:"redis" json:"redis"`
}

// DefaultConfig returns an in-memory history configuration.
func DefaultConfig() *Config {
	return &Config{Backend: "memory"}
}

// NewStore creates a history store from config.
func NewStore(config *Config) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch config.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", config.Backend)
	}
}

// MemoryStore keeps per-session logs in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	logs       map[string][]*types.Message
	rejections map[string][]*types.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:       make(map[string][]*types.Message),
		rejections: make(map[string][]*types.Message),
	}
}

// Append records an accepted message, enforcing sequence contiguity.
func (s *MemoryStore) Append(_ context.Context, msg *types.Message) error {
	if msg == nil || msg.SessionID == "" {
		return types.NewError(types.ErrInvalidArgument, "message session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[msg.SessionID]
	want := uint64(len(log)) + 1
	if msg.Seq != want {
		return types.NewErrorf(types.ErrInternal, "sequence gap for session %s: got %d, want %d", msg.SessionID, msg.Seq, want)
	}
	s.logs[msg.SessionID] = append(log, msg.Clone())
	return nil
}

// Read returns accepted messages after sinceSeq in ascending order.
func (s *MemoryStore) Read(_ context.Context, sessionID string, sinceSeq uint64) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[sessionID]
	if sinceSeq >= uint64(len(log)) {
		return []*types.Message{}, nil
	}
	tail := log[sinceSeq:]
	result := make([]*types.Message, 0, len(tail))
	for _, msg := range tail {
		result = append(result, msg.Clone())
	}
	return result, nil
}

// LastSeq returns the highest sequence number recorded for the session.
func (s *MemoryStore) LastSeq(_ context.Context, sessionID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.logs[sessionID])), nil
}

// AppendRejection records a rejected message in the audit log.
func (s *MemoryStore) AppendRejection(_ context.Context, msg *types.Message) error {
	if msg == nil || msg.SessionID == "" {
		return types.NewError(types.ErrInvalidArgument, "message session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[msg.SessionID] = append(s.rejections[msg.SessionID], msg.Clone())
	return nil
}

// Rejections returns the rejection audit log in arrival order.
func (s *MemoryStore) Rejections(_ context.Context, sessionID string) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.rejections[sessionID]
	result := make([]*types.Message, 0, len(log))
	for _, msg := range log {
		result = append(result, msg.Clone())
	}
	return result, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
