package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

// Event represents a change in the registry.
type Event struct {
	// Type is the event type.
	Type EventType `json:"type"`

	// AgentID is the id of the agent involved.
	AgentID string `json:"agent_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// EventType defines the type of registry event.
type EventType string

const (
	// EventAgentRegistered indicates an agent was registered.
	EventAgentRegistered EventType = "agent_registered"
	// EventAgentUpdated indicates a re-registration merged into an existing
	// descriptor.
	EventAgentUpdated EventType = "agent_updated"
	// EventAgentDeregistered indicates an agent was removed.
	EventAgentDeregistered EventType = "agent_deregistered"
)

// EventHandler is a function that handles registry events.
type EventHandler func(event *Event)

// Filter selects descriptors in List. A nil filter matches everything.
type Filter struct {
	// Capabilities requires every listed tag to be present.
	Capabilities []string

	// Name requires an exact display-name match when non-empty.
	Name string
}

func (f *Filter) matches(d *types.AgentDescriptor) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && d.Name != f.Name {
		return false
	}
	return d.HasAllCapabilities(f.Capabilities)
}

// Config holds configuration for the registry.
type Config struct {
	// StaleAfter is the liveness timeout used by PruneStale when the caller
	// passes no explicit maximum.
	StaleAfter time.Duration `yaml:"stale_after" json:"stale_after"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StaleAfter: 5 * time.Minute,
	}
}

// Registry holds the set of known agent descriptors. It is the sole owner of
// agent identity and liveness state; all mutations go through its operations.
type Registry struct {
	mu sync.RWMutex

	// agents stores registered descriptors by id.
	agents map[string]*types.AgentDescriptor

	// eventHandlers stores event handlers by subscription id.
	eventHandlers map[string]EventHandler
	handlerMu     sync.RWMutex

	config *Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new agent registry.
func New(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		agents:        make(map[string]*types.AgentDescriptor),
		eventHandlers: make(map[string]EventHandler),
		config:        config,
		logger:        logger.With(zap.String("component", "agent_registry")),
		now:           time.Now,
	}
}

// WithClock overrides the registry's time source. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register inserts a new descriptor or merges into an existing one. On
// re-registration with a known id the capability sets are merged by union and
// liveness is refreshed; no duplicate is created. Returns the stored
// descriptor.
func (r *Registry) Register(ctx context.Context, desc *types.AgentDescriptor) (*types.AgentDescriptor, error) {
	if desc == nil {
		return nil, types.NewError(types.ErrInvalidArgument, "descriptor is nil")
	}
	if desc.ID == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "agent id is empty")
	}
	if desc.Name == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "agent name is empty")
	}

	r.mu.Lock()
	now := r.now()

	existing, ok := r.agents[desc.ID]
	var stored *types.AgentDescriptor
	eventType := EventAgentRegistered

	if ok {
		// Merge: union of capability tags, refreshed liveness. Registration
		// time is preserved from the first registration.
		existing.Name = desc.Name
		existing.Capabilities = mergeTags(existing.Capabilities, desc.Capabilities)
		for k, v := range desc.Metadata {
			if existing.Metadata == nil {
				existing.Metadata = make(map[string]string)
			}
			existing.Metadata[k] = v
		}
		existing.LastActive = now
		stored = existing
		eventType = EventAgentUpdated
	} else {
		stored = desc.Clone()
		stored.Capabilities = mergeTags(nil, desc.Capabilities)
		stored.RegisteredAt = now
		stored.LastActive = now
		r.agents[stored.ID] = stored
	}

	snapshot := stored.Clone()
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", snapshot.ID),
		zap.Int("capabilities", len(snapshot.Capabilities)),
		zap.Bool("merged", ok),
	)

	r.emitEvent(&Event{Type: eventType, AgentID: snapshot.ID, Timestamp: now})

	return snapshot, nil
}

// Deregister removes the descriptor if present. Idempotent: absence is not an
// error.
func (r *Registry) Deregister(ctx context.Context, agentID string) {
	r.mu.Lock()
	_, existed := r.agents[agentID]
	delete(r.agents, agentID)
	r.mu.Unlock()

	if existed {
		r.logger.Info("agent deregistered", zap.String("agent_id", agentID))
		r.emitEvent(&Event{Type: EventAgentDeregistered, AgentID: agentID, Timestamp: r.now()})
	}
}

// Get retrieves a descriptor by id.
func (r *Registry) Get(ctx context.Context, agentID string) (*types.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.agents[agentID]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not found", agentID)
	}

	return desc.Clone(), nil
}

// Exists reports whether an agent id is registered.
func (r *Registry) Exists(ctx context.Context, agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// List returns a snapshot of descriptors matching the optional filter. Later
// registry mutations do not change an already-returned slice.
func (r *Registry) List(ctx context.Context, filter *Filter) []*types.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.AgentDescriptor, 0, len(r.agents))
	for _, desc := range r.agents {
		if filter.matches(desc) {
			result = append(result, desc.Clone())
		}
	}

	return result
}

// Heartbeat refreshes the liveness timestamp for an agent.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.agents[agentID]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "agent %s not found", agentID)
	}

	desc.LastActive = r.now()
	return nil
}

// Touch refreshes liveness for an agent as a side effect of activity, such as
// an accepted message. Unknown ids are ignored.
func (r *Registry) Touch(ctx context.Context, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if desc, ok := r.agents[agentID]; ok {
		desc.LastActive = r.now()
	}
}

// PruneStale removes agents whose liveness timestamp is older than maxIdle.
// Zero maxIdle falls back to the configured StaleAfter. Returns the number of
// removed descriptors. This is an eager reclaim policy; correctness never
// depends on it running.
func (r *Registry) PruneStale(ctx context.Context, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = r.config.StaleAfter
	}

	r.mu.Lock()
	cutoff := r.now().Add(-maxIdle)
	removed := make([]string, 0)
	for id, desc := range r.agents {
		if desc.LastActive.Before(cutoff) {
			delete(r.agents, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		r.logger.Info("stale agent pruned", zap.String("agent_id", id))
		r.emitEvent(&Event{Type: EventAgentDeregistered, AgentID: id, Timestamp: r.now()})
	}

	return len(removed)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Subscribe subscribes to registry events. Returns a subscription id.
func (r *Registry) Subscribe(handler EventHandler) string {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	id := fmt.Sprintf("sub-%d", r.now().UnixNano())
	for {
		if _, taken := r.eventHandlers[id]; !taken {
			break
		}
		id += "x"
	}
	r.eventHandlers[id] = handler
	return id
}

// Unsubscribe removes an event subscription.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	delete(r.eventHandlers, subscriptionID)
}

// emitEvent emits a registry event to all subscribers.
func (r *Registry) emitEvent(event *Event) {
	r.handlerMu.RLock()
	handlers := make([]EventHandler, 0, len(r.eventHandlers))
	for _, h := range r.eventHandlers {
		handlers = append(handlers, h)
	}
	r.handlerMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// mergeTags returns the union of two tag lists, preserving the order of
// first appearance.
func mergeTags(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, tag := range existing {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	for _, tag := range incoming {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	return merged
}
