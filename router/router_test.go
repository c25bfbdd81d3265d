package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/gate"
	"github.com/oneagent/coordination/history"
	"github.com/oneagent/coordination/session"
	"github.com/oneagent/coordination/types"
)

type knownAgents map[string]bool

func (k knownAgents) Exists(_ context.Context, id string) bool {
	return k[id]
}

type acceptAll struct{}

func (acceptAll) Evaluate(_ context.Context, _ string, _ map[string]any) (*types.Verdict, error) {
	return &types.Verdict{Accepted: true, Score: 100}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	router   *Router
	sessions *session.Manager
	store    history.Store
	clock    *fakeClock
}

func newFixture(t *testing.T, agents knownAgents, evaluator gate.Evaluator) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions := session.NewManager(session.NewMemoryStore(), agents, nil, zap.NewNop()).WithClock(clock.Now)
	store := history.NewMemoryStore()
	g := gate.New(evaluator, nil, zap.NewNop())
	r := New(sessions, g, store, zap.NewNop()).WithClock(clock.Now)
	t.Cleanup(r.Close)
	return &fixture{router: r, sessions: sessions, store: store, clock: clock}
}

func (f *fixture) createSession(t *testing.T, participants ...string) string {
	t.Helper()
	s, err := f.sessions.Create(context.Background(), participants, "test", "", time.Minute)
	require.NoError(t, err)
	return s.ID
}

func TestSendAssignsContiguousSequences(t *testing.T) {
	f := newFixture(t, knownAgents{"dev-agent": true, "office-agent": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "dev-agent", "office-agent")

	r1, err := f.router.Send(ctx, sid, "dev-agent", "draft ready", nil, nil)
	require.NoError(t, err)
	assert.True(t, r1.Accepted)
	assert.Equal(t, uint64(1), r1.Message.Seq)

	r2, err := f.router.Send(ctx, sid, "office-agent", "reviewing", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Message.Seq)

	msgs, err := f.router.History(ctx, sid, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Seq)
	assert.Equal(t, uint64(2), msgs[1].Seq)
	assert.Equal(t, "draft ready", msgs[0].Content)
}

func TestRejectedMessageLeavesHistoryUntouched(t *testing.T) {
	evaluator := gate.NewRuleEvaluator(&gate.RuleConfig{
		MaxContentLength: 1000,
		BlockedKeywords:  []string{"unsafe"},
	})
	f := newFixture(t, knownAgents{"a": true, "b": true}, evaluator)
	ctx := context.Background()
	sid := f.createSession(t, "a", "b")

	r1, err := f.router.Send(ctx, sid, "a", "all good", nil, nil)
	require.NoError(t, err)
	require.True(t, r1.Accepted)

	r2, err := f.router.Send(ctx, sid, "a", "this is unsafe content", nil, nil)
	require.NoError(t, err)
	assert.False(t, r2.Accepted)
	assert.Zero(t, r2.Message.Seq)
	assert.NotEmpty(t, r2.Verdict.Reasons)

	msgs, err := f.router.History(ctx, sid, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	rejections, err := f.router.Rejections(ctx, sid)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.False(t, rejections[0].Verdict.Accepted)

	// Next accepted message continues the sequence without a gap.
	r3, err := f.router.Send(ctx, sid, "a", "back on track", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r3.Message.Seq)
}

func TestSendToClosedSession(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b")

	_, err := f.sessions.Close(ctx, sid, "a")
	require.NoError(t, err)

	_, err = f.router.Send(ctx, sid, "a", "too late", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))
}

func TestSendToExpiredSession(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a")

	f.clock.Advance(2 * time.Minute)

	_, err := f.router.Send(ctx, sid, "a", "too late", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.GetErrorCode(err))
}

func TestSendFromNonParticipant(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "outsider": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a")

	_, err := f.router.Send(ctx, sid, "outsider", "let me in", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotParticipant, types.GetErrorCode(err))
}

func TestSendToUnknownRecipient(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b")

	_, err := f.router.Send(ctx, sid, "a", "hello", []string{"ghost"}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotParticipant, types.GetErrorCode(err))
}

func TestSendInvalidInput(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a")

	_, err := f.router.Send(ctx, sid, "", "hello", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))

	_, err = f.router.Send(ctx, sid, "a", "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))

	_, err = f.router.Send(ctx, "missing", "a", "hello", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBroadcastExcludesSender(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true, "c": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b", "c")

	chB := f.router.Notifier().Subscribe("b")
	chC := f.router.Notifier().Subscribe("c")

	result, err := f.router.Broadcast(ctx, sid, "a", "hello everyone", nil)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.ElementsMatch(t, []string{"b", "c"}, result.Message.Recipients)
	assert.ElementsMatch(t, []string{"b", "c"}, result.Delivered)
	assert.Empty(t, result.FailedDelivery)
	assert.Nil(t, result.Warning)

	select {
	case msg := <-chB:
		assert.Equal(t, "hello everyone", msg.Content)
	default:
		t.Fatal("expected delivery to b")
	}
	select {
	case msg := <-chC:
		assert.Equal(t, uint64(1), msg.Seq)
	default:
		t.Fatal("expected delivery to c")
	}
}

func TestPartialDeliveryIsWarningNotError(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true, "c": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b", "c")

	f.router.Notifier().Subscribe("b")

	result, err := f.router.Broadcast(ctx, sid, "a", "hello", nil)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, []string{"b"}, result.Delivered)
	assert.Equal(t, []string{"c"}, result.FailedDelivery)
	require.NotNil(t, result.Warning)
	assert.Equal(t, types.ErrDeliveryPartial, result.Warning.Code)

	// Durability is not affected by the delivery failure.
	msgs, err := f.router.History(ctx, sid, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestDirectSendResolvedRecipients(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true, "c": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b", "c")

	result, err := f.router.Send(ctx, sid, "a", "just for b", []string{"b", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DeliveryDirect, result.Message.Kind)
	assert.Equal(t, []string{"b"}, result.Message.Recipients)

	// Omitted recipients behave as a broadcast.
	result, err = f.router.Send(ctx, sid, "a", "for everyone", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DeliveryBroadcast, result.Message.Kind)
	assert.ElementsMatch(t, []string{"b", "c"}, result.Message.Recipients)
}

func TestIncrementalHistoryRead(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a")

	for i := 0; i < 5; i++ {
		_, err := f.router.Send(ctx, sid, "a", fmt.Sprintf("message %d", i+1), nil, nil)
		require.NoError(t, err)
	}

	msgs, err := f.router.History(ctx, sid, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(4), msgs[0].Seq)
	assert.Equal(t, uint64(5), msgs[1].Seq)

	_, err = f.router.History(ctx, "missing", 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestSequenceResumesFromStoreTail(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a")

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, f.store.Append(ctx, &types.Message{
			ID:        fmt.Sprintf("pre-%d", seq),
			SessionID: sid,
			Sender:    "a",
			Seq:       seq,
			Kind:      types.DeliveryBroadcast,
			Content:   "earlier",
			Timestamp: f.clock.Now(),
		}))
	}

	result, err := f.router.Send(ctx, sid, "a", "after restart", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), result.Message.Seq)
}

func TestSweepDropsTerminalSessionCounters(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true}, acceptAll{})
	ctx := context.Background()

	closed := f.createSession(t, "a", "b")
	expiring := f.createSession(t, "a", "b")
	live, err := f.sessions.Create(ctx, []string{"a", "b"}, "test", "", time.Hour)
	require.NoError(t, err)

	for _, sid := range []string{closed, expiring, live.ID} {
		_, err := f.router.Send(ctx, sid, "a", "hello", nil, nil)
		require.NoError(t, err)
	}

	_, err = f.sessions.Close(ctx, closed, "a")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	assert.Equal(t, 2, f.router.Sweep(ctx))

	f.router.mu.Lock()
	defer f.router.mu.Unlock()
	assert.NotContains(t, f.router.counters, closed)
	assert.NotContains(t, f.router.counters, expiring)
	assert.Contains(t, f.router.counters, live.ID)
}

func TestConcurrentSendsAreGapFree(t *testing.T) {
	f := newFixture(t, knownAgents{"a": true, "b": true}, acceptAll{})
	ctx := context.Background()
	sid := f.createSession(t, "a", "b")

	const senders = 2
	const perSender = 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		agent := []string{"a", "b"}[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := f.router.Send(ctx, sid, agent, "concurrent", nil, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	msgs, err := f.router.History(ctx, sid, 0)
	require.NoError(t, err)
	require.Len(t, msgs, senders*perSender)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i+1), msg.Seq)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier(zap.NewNop())
	ch := n.Subscribe("a")
	n.Unsubscribe("a")

	_, open := <-ch
	assert.False(t, open)

	failed := n.Deliver(&types.Message{ID: "m"}, []string{"a"})
	assert.Equal(t, []string{"a"}, failed)

	n.Close()
	n.Close()
}
