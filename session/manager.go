package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/internal/metrics"
	"github.com/oneagent/coordination/types"
)

// AgentChecker verifies agent registration. Satisfied by registry.Registry.
type AgentChecker interface {
	Exists(ctx context.Context, id string) bool
}

// Config holds configuration for the session manager.
type Config struct {
	// DefaultTTL applies when a create request omits the TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// MaxTTL caps the session lifetime. Zero disables the cap.
	MaxTTL time.Duration `yaml:"max_ttl" json:"max_ttl"`

	// Store selects the session persistence backend.
	Store *StoreConfig `yaml:"store" json:"store"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: 30 * time.Minute,
		MaxTTL:     24 * time.Hour,
		Store:      DefaultStoreConfig(),
	}
}

// Filter narrows a session listing.
type Filter struct {
	// Participant keeps only sessions containing this agent id.
	Participant string

	// State keeps only sessions in this lifecycle state.
	State types.SessionState
}

// Manager owns the session state machine. All lifecycle transitions go
// through it; expiration is observed lazily at the top of every
// session-scoped operation, so no background timer is required for
// correctness. Mutations are serialized per session id.
type Manager struct {
	store     Store
	agents    AgentChecker
	config    *Config
	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager on top of the given store.
func NewManager(store Store, agents AgentChecker, config *Config, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		agents: agents,
		config: config,
		logger: logger.With(zap.String("component", "session_manager")),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the time source. For tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithCollector attaches a metrics collector. Optional.
func (m *Manager) WithCollector(collector *metrics.Collector) *Manager {
	m.collector = collector
	return m
}

func (m *Manager) recordTransition(toState types.SessionState) {
	if m.collector != nil {
		m.collector.RecordSessionTransition(string(toState))
	}
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// Create validates the participants against the registry and creates a new
// session. The created state is promoted to active before the session is
// persisted, so callers only ever observe active sessions from this call.
func (m *Manager) Create(ctx context.Context, participantIDs []string, topic, createdBy string, ttl time.Duration) (*types.Session, error) {
	if len(participantIDs) == 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "at least one participant is required")
	}
	if ttl < 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "ttl must be positive")
	}
	if ttl == 0 {
		if m.config.DefaultTTL <= 0 {
			return nil, types.NewError(types.ErrInvalidArgument, "ttl must be positive")
		}
		ttl = m.config.DefaultTTL
	}
	if m.config.MaxTTL > 0 && ttl > m.config.MaxTTL {
		ttl = m.config.MaxTTL
	}

	participants := make([]string, 0, len(participantIDs)+1)
	seen := make(map[string]struct{}, len(participantIDs)+1)
	addParticipant := func(id string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return types.NewError(types.ErrInvalidArgument, "participant id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return nil
		}
		if !m.agents.Exists(ctx, id) {
			return types.NewErrorf(types.ErrUnknownAgent, "agent not registered: %s", id)
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
		return nil
	}
	if createdBy != "" {
		if err := addParticipant(createdBy); err != nil {
			return nil, err
		}
	}
	for _, id := range participantIDs {
		if err := addParticipant(id); err != nil {
			return nil, err
		}
	}

	now := m.now()
	session := &types.Session{
		ID:           uuid.NewString(),
		Topic:        topic,
		Participants: participants,
		CreatedBy:    createdBy,
		State:        types.SessionStateCreated,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}
	session.State = types.SessionStateActive

	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.recordTransition(types.SessionStateActive)
	m.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("topic", topic),
		zap.Int("participants", len(participants)),
		zap.Duration("ttl", ttl),
	)
	return session.Clone(), nil
}

// Join adds a registered agent to an active session. Idempotent when the
// agent is already a participant. Refreshes last activity but never extends
// the expiration timestamp.
func (m *Manager) Join(ctx context.Context, sessionID, agentID string) (*types.Session, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "agent id is required")
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, types.NewErrorf(types.ErrSessionClosed, "session %s is %s", sessionID, session.State)
	}
	if !m.agents.Exists(ctx, agentID) {
		return nil, types.NewErrorf(types.ErrUnknownAgent, "agent not registered: %s", agentID)
	}

	if !session.HasParticipant(agentID) {
		session.Participants = append(session.Participants, agentID)
	}
	session.LastActivity = m.now()
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Info("agent joined session",
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
	)
	return session.Clone(), nil
}

// Get returns the session after applying the lazy expiration check.
func (m *Manager) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.loadChecked(ctx, sessionID)
}

// Active returns the session only if it is active. Terminal or expired
// sessions produce a SESSION_CLOSED error. The router calls this before
// accepting any message.
func (m *Manager) Active(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := m.loadChecked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != types.SessionStateActive {
		return nil, types.NewErrorf(types.ErrSessionClosed, "session %s is %s", sessionID, session.State)
	}
	return session, nil
}

// List returns a snapshot of sessions matching the optional filter. Each
// session passes the lazy expiration check before inclusion, so a listing
// never reports a stale active state.
func (m *Manager) List(ctx context.Context, filter *Filter) ([]*types.Session, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	result := make([]*types.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.State == types.SessionStateActive && session.ExpiredAt(now) {
			expired, err := m.expire(ctx, session.ID)
			if err != nil {
				return nil, err
			}
			session = expired
		}
		if filter != nil {
			if filter.Participant != "" && !session.HasParticipant(filter.Participant) {
				continue
			}
			if filter.State != "" && session.State != filter.State {
				continue
			}
		}
		result = append(result, session)
	}
	return result, nil
}

// Close transitions the session to closed. Only a current participant may
// close it. Closing an already terminal session is an error.
func (m *Manager) Close(ctx context.Context, sessionID, byAgentID string) (*types.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, types.NewErrorf(types.ErrSessionClosed, "session %s is %s", sessionID, session.State)
	}
	if !session.HasParticipant(byAgentID) {
		return nil, types.NewErrorf(types.ErrNotParticipant, "agent %s is not a participant of session %s", byAgentID, sessionID)
	}

	session.State = types.SessionStateClosed
	session.LastActivity = m.now()
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.recordTransition(types.SessionStateClosed)
	m.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.String("closed_by", byAgentID),
	)
	return session.Clone(), nil
}

// Extend pushes the expiration timestamp out by extra. Only a current
// participant may extend, and only while the session is active. The result
// is capped at now+MaxTTL when a cap is configured.
func (m *Manager) Extend(ctx context.Context, sessionID, byAgentID string, extra time.Duration) (*types.Session, error) {
	if extra <= 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "extension must be positive")
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, types.NewErrorf(types.ErrSessionClosed, "session %s is %s", sessionID, session.State)
	}
	if !session.HasParticipant(byAgentID) {
		return nil, types.NewErrorf(types.ErrNotParticipant, "agent %s is not a participant of session %s", byAgentID, sessionID)
	}

	now := m.now()
	expiresAt := session.ExpiresAt.Add(extra)
	if m.config.MaxTTL > 0 {
		cap := now.Add(m.config.MaxTTL)
		if expiresAt.After(cap) {
			expiresAt = cap
		}
	}
	session.ExpiresAt = expiresAt
	session.LastActivity = now
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Info("session extended",
		zap.String("session_id", sessionID),
		zap.Time("expires_at", expiresAt),
	)
	return session.Clone(), nil
}

// TouchActivity refreshes the session's last activity timestamp. The router
// calls this after every accepted message. Unknown or terminal sessions are
// ignored.
func (m *Manager) TouchActivity(ctx context.Context, sessionID string) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.store.Get(ctx, sessionID)
	if err != nil || session.State.Terminal() {
		return
	}
	session.LastActivity = m.now()
	if err := m.store.Save(ctx, session); err != nil {
		m.logger.Warn("failed to touch session activity",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Sweep eagerly transitions expired active sessions. Correctness never
// depends on it; it exists to reclaim storage and keep listings tidy.
// Returns the number of sessions transitioned.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	swept := 0
	var terminal []string
	for _, session := range sessions {
		if session.State.Terminal() {
			terminal = append(terminal, session.ID)
			continue
		}
		if session.State != types.SessionStateActive || !session.ExpiredAt(now) {
			continue
		}
		if _, err := m.expire(ctx, session.ID); err != nil {
			return swept, err
		}
		terminal = append(terminal, session.ID)
		swept++
	}

	// Terminal sessions are never mutated again, so their serialization
	// locks can go. A later read recreates the entry on demand.
	if len(terminal) > 0 {
		m.mu.Lock()
		for _, id := range terminal {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}

	if swept > 0 {
		m.logger.Info("expired sessions swept", zap.Int("count", swept))
	}
	return swept, nil
}

// loadChecked loads the session and applies the lazy expiration transition
// when due. This is the guard clause every session-scoped operation runs
// first. Callers must not hold the session lock.
func (m *Manager) loadChecked(ctx context.Context, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "session id is required")
	}
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == types.SessionStateActive && session.ExpiredAt(m.now()) {
		return m.expire(ctx, sessionID)
	}
	return session, nil
}

// loadLocked is loadChecked for callers already holding the session lock.
func (m *Manager) loadLocked(ctx context.Context, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "session id is required")
	}
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == types.SessionStateActive && session.ExpiredAt(m.now()) {
		session.State = types.SessionStateExpired
		if err := m.store.Save(ctx, session); err != nil {
			return nil, err
		}
		m.recordTransition(types.SessionStateExpired)
		m.logger.Debug("session expired", zap.String("session_id", sessionID))
	}
	return session, nil
}

// expire performs the ACTIVE to EXPIRED transition under the session lock,
// re-reading first so concurrent observers converge on a single transition.
func (m *Manager) expire(ctx context.Context, sessionID string) (*types.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != types.SessionStateActive || !session.ExpiredAt(m.now()) {
		return session, nil
	}
	session.State = types.SessionStateExpired
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}
	m.recordTransition(types.SessionStateExpired)
	m.logger.Debug("session expired", zap.String("session_id", sessionID))
	return session, nil
}
