package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oneagent/coordination/types"
)

// RedisConfig configures the redis history backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisStore is a redis-backed history store for distributed deployments.
// Each session's accepted log is a redis list; because accepted sequence
// numbers are contiguous from 1, list index N holds sequence N+1 and LLEN
// equals the last assigned sequence.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil || config.Addr == "" {
		return nil, fmt.Errorf("redis history backend requires an address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "coordination:"
	}

	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

// NewRedisStoreWithClient wraps an existing client. For tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "coordination:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) historyKey(sessionID string) string {
	return s.keyPrefix + "history:" + sessionID
}

func (s *RedisStore) rejectionKey(sessionID string) string {
	return s.keyPrefix + "rejections:" + sessionID
}

// Append records an accepted message, enforcing sequence contiguity.
func (s *RedisStore) Append(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.SessionID == "" {
		return types.NewError(types.ErrInvalidArgument, "message session id is required")
	}

	length, err := s.client.LLen(ctx, s.historyKey(msg.SessionID)).Result()
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to read history length").WithCause(err)
	}
	want := uint64(length) + 1
	if msg.Seq != want {
		return types.NewErrorf(types.ErrInternal, "sequence gap for session %s: got %d, want %d", msg.SessionID, msg.Seq, want)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to marshal message").WithCause(err)
	}
	if err := s.client.RPush(ctx, s.historyKey(msg.SessionID), data).Err(); err != nil {
		return types.NewError(types.ErrInternal, "failed to append message").WithCause(err)
	}
	return nil
}

// Read returns accepted messages after sinceSeq in ascending order.
func (s *RedisStore) Read(ctx context.Context, sessionID string, sinceSeq uint64) ([]*types.Message, error) {
	entries, err := s.client.LRange(ctx, s.historyKey(sessionID), int64(sinceSeq), -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to read history").WithCause(err)
	}
	return decodeMessages(entries)
}

// LastSeq returns the highest sequence number recorded for the session.
func (s *RedisStore) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	length, err := s.client.LLen(ctx, s.historyKey(sessionID)).Result()
	if err != nil {
		return 0, types.NewError(types.ErrInternal, "failed to read history length").WithCause(err)
	}
	return uint64(length), nil
}

// AppendRejection records a rejected message in the audit log.
func (s *RedisStore) AppendRejection(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.SessionID == "" {
		return types.NewError(types.ErrInvalidArgument, "message session id is required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to marshal message").WithCause(err)
	}
	if err := s.client.RPush(ctx, s.rejectionKey(msg.SessionID), data).Err(); err != nil {
		return types.NewError(types.ErrInternal, "failed to append rejection").WithCause(err)
	}
	return nil
}

// Rejections returns the rejection audit log in arrival order.
func (s *RedisStore) Rejections(ctx context.Context, sessionID string) ([]*types.Message, error) {
	entries, err := s.client.LRange(ctx, s.rejectionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to read rejections").WithCause(err)
	}
	return decodeMessages(entries)
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeMessages(entries []string) ([]*types.Message, error) {
	result := make([]*types.Message, 0, len(entries))
	for _, entry := range entries {
		var msg types.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, types.NewError(types.ErrInternal, "failed to unmarshal message").WithCause(err)
		}
		result = append(result, &msg)
	}
	return result, nil
}
