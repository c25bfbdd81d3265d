package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneagent/coordination/types"
)

func acceptedMessage(sessionID string, seq uint64, content string) *types.Message {
	return &types.Message{
		ID:        content + "-id",
		SessionID: sessionID,
		Sender:    "dev-agent",
		Seq:       seq,
		Kind:      types.DeliveryBroadcast,
		Content:   content,
		Verdict:   &types.Verdict{Accepted: true, Score: 100},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func runHistoryTests(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("empty session", func(t *testing.T) {
		msgs, err := store.Read(ctx, "none", 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		last, err := store.LastSeq(ctx, "none")
		require.NoError(t, err)
		assert.Zero(t, last)
	})

	t.Run("append and read", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, acceptedMessage("s1", 1, "first")))
		require.NoError(t, store.Append(ctx, acceptedMessage("s1", 2, "second")))
		require.NoError(t, store.Append(ctx, acceptedMessage("s1", 3, "third")))

		msgs, err := store.Read(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, msg := range msgs {
			assert.Equal(t, uint64(i+1), msg.Seq)
		}
		assert.Equal(t, "first", msgs[0].Content)

		last, err := store.LastSeq(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last)
	})

	t.Run("incremental read", func(t *testing.T) {
		msgs, err := store.Read(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, uint64(3), msgs[0].Seq)

		msgs, err = store.Read(ctx, "s1", 3)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		msgs, err = store.Read(ctx, "s1", 99)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("sequence gap rejected", func(t *testing.T) {
		err := store.Append(ctx, acceptedMessage("s1", 5, "gap"))
		require.Error(t, err)
		assert.Equal(t, types.ErrInternal, types.GetErrorCode(err))

		err = store.Append(ctx, acceptedMessage("s1", 3, "dup"))
		require.Error(t, err)
	})

	t.Run("sessions are independent", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, acceptedMessage("s2", 1, "other")))

		msgs, err := store.Read(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("rejections audited separately", func(t *testing.T) {
		rejected := acceptedMessage("s1", 0, "bad")
		rejected.Seq = 0
		rejected.Verdict = &types.Verdict{Accepted: false, Reasons: []string{"blocked"}}
		require.NoError(t, store.AppendRejection(ctx, rejected))

		msgs, err := store.Read(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)

		rejections, err := store.Rejections(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, rejections, 1)
		assert.False(t, rejections[0].Verdict.Accepted)
	})

	t.Run("invalid append", func(t *testing.T) {
		err := store.Append(ctx, &types.Message{})
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
	})
}

func TestMemoryStore(t *testing.T) {
	runHistoryTests(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "test:")
	defer store.Close()

	runHistoryTests(t, store)
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(nil)
	require.NoError(t, err)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)

	_, err = NewStore(&Config{Backend: "bogus"})
	require.Error(t, err)

	_, err = NewStore(&Config{Backend: "redis"})
	require.Error(t, err)
}
