package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

type knownAgents map[string]bool

func (k knownAgents) Exists(_ context.Context, id string) bool {
	return k[id]
}

func newTestManager(t *testing.T, agents knownAgents) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(NewMemoryStore(), agents, nil, zap.NewNop()).WithClock(clock.Now)
	return m, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestCreateSession(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"dev-agent": true, "office-agent": true})
	ctx := context.Background()

	s, err := m.Create(ctx, []string{"dev-agent", "office-agent"}, "release planning", "dev-agent", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, types.SessionStateActive, s.State)
	assert.Equal(t, []string{"dev-agent", "office-agent"}, s.Participants)
	assert.Equal(t, clock.Now().Add(time.Minute), s.ExpiresAt)
}

func TestCreateSessionUnknownParticipant(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"dev-agent": true})

	_, err := m.Create(context.Background(), []string{"dev-agent", "ghost"}, "", "", time.Minute)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAgent, types.GetErrorCode(err))
}

func TestCreateSessionInvalidTTL(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"dev-agent": true})

	_, err := m.Create(context.Background(), []string{"dev-agent"}, "", "", -time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
}

func TestCreateSessionDefaultTTL(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"dev-agent": true})

	s, err := m.Create(context.Background(), []string{"dev-agent"}, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultConfig().DefaultTTL), s.ExpiresAt)
}

func TestJoinSessionIdempotent(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	joined, err := m.Join(ctx, s.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, joined.Participants)

	joined, err = m.Join(ctx, s.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, joined.Participants)
}

func TestJoinDoesNotExtendExpiry(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)
	expiresAt := s.ExpiresAt

	clock.Advance(30 * time.Second)
	joined, err := m.Join(ctx, s.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, expiresAt, joined.ExpiresAt)
	assert.Equal(t, clock.Now(), joined.LastActivity)
}

func TestJoinUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true})

	_, err := m.Join(context.Background(), "missing", "a")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestJoinUnregisteredAgent(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	_, err = m.Join(ctx, s.ID, "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAgent, types.GetErrorCode(err))
}

func TestLazyExpiration(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStateExpired, got.State)

	_, err = m.Join(ctx, s.ID, "b")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))

	_, err = m.Active(ctx, s.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))
}

func TestCloseSession(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a", "b"}, "", "", time.Minute)
	require.NoError(t, err)

	closed, err := m.Close(ctx, s.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, types.SessionStateClosed, closed.State)

	_, err = m.Close(ctx, s.ID, "a")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))

	_, err = m.Join(ctx, s.ID, "b")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))
}

func TestCloseByNonParticipant(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true, "outsider": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	_, err = m.Close(ctx, s.ID, "outsider")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotParticipant, types.GetErrorCode(err))
}

func TestExtendSession(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	extended, err := m.Extend(ctx, s.ID, "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Minute), extended.ExpiresAt)

	_, err = m.Extend(ctx, s.ID, "a", 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
}

func TestExtendCappedByMaxTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	config := &Config{DefaultTTL: time.Minute, MaxTTL: 2 * time.Minute, Store: DefaultStoreConfig()}
	m := NewManager(NewMemoryStore(), knownAgents{"a": true}, config, zap.NewNop()).WithClock(clock.Now)
	ctx := context.Background()

	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	extended, err := m.Extend(ctx, s.ID, "a", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Minute), extended.ExpiresAt)
	_ = s
}

func TestListSessionsFiltered(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()

	s1, err := m.Create(ctx, []string{"a"}, "one", "", time.Minute)
	require.NoError(t, err)
	s2, err := m.Create(ctx, []string{"a", "b"}, "two", "", time.Hour)
	require.NoError(t, err)

	all, err := m.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byParticipant, err := m.List(ctx, &Filter{Participant: "b"})
	require.NoError(t, err)
	require.Len(t, byParticipant, 1)
	assert.Equal(t, s2.ID, byParticipant[0].ID)

	clock.Advance(2 * time.Minute)
	expired, err := m.List(ctx, &Filter{State: types.SessionStateExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, s1.ID, expired[0].ID)
}

func TestSweep(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true})
	ctx := context.Background()

	_, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)
	keep, err := m.Create(ctx, []string{"a"}, "", "", time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	swept, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := m.Get(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStateActive, got.State)
}

func TestSweepReapsSessionLocks(t *testing.T) {
	m, clock := newTestManager(t, knownAgents{"a": true})
	ctx := context.Background()

	expiring, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)
	closed, err := m.Create(ctx, []string{"a"}, "", "", time.Hour)
	require.NoError(t, err)
	live, err := m.Create(ctx, []string{"a"}, "", "", time.Hour)
	require.NoError(t, err)

	_, err = m.Close(ctx, closed.ID, "a")
	require.NoError(t, err)
	m.TouchActivity(ctx, expiring.ID)
	m.TouchActivity(ctx, live.ID)

	clock.Advance(2 * time.Minute)
	_, err = m.Sweep(ctx)
	require.NoError(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.locks, expiring.ID)
	assert.NotContains(t, m.locks, closed.ID)
	assert.Contains(t, m.locks, live.ID)
}

func TestSnapshotIsolation(t *testing.T) {
	m, _ := newTestManager(t, knownAgents{"a": true, "b": true})
	ctx := context.Background()
	s, err := m.Create(ctx, []string{"a"}, "", "", time.Minute)
	require.NoError(t, err)

	snapshot, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	snapshot.Participants[0] = "mutated"

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Participants)
}
