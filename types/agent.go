package types

import "time"

// AgentDescriptor describes a registered agent: its stable identity, display
// name, capability tags, and liveness information.
type AgentDescriptor struct {
	// ID is the stable unique identifier of the agent.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Capabilities is the set of capability tags. Set semantics: duplicates
	// collapse, re-registration merges by union.
	Capabilities []string `json:"capabilities,omitempty"`

	// Metadata contains additional descriptor metadata.
	Metadata map[string]string `json:"metadata,omitempty"`

	// RegisteredAt is when the agent was first registered.
	RegisteredAt time.Time `json:"registered_at"`

	// LastActive is the liveness timestamp, refreshed by heartbeats and
	// registry activity.
	LastActive time.Time `json:"last_active"`
}

// HasCapability reports whether the descriptor carries the given tag.
func (d *AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether the descriptor carries every given tag.
func (d *AgentDescriptor) HasAllCapabilities(tags []string) bool {
	for _, tag := range tags {
		if !d.HasCapability(tag) {
			return false
		}
	}
	return true
}

// HasAnyCapability reports whether the descriptor carries at least one of the
// given tags. An empty tag list matches every descriptor.
func (d *AgentDescriptor) HasAnyCapability(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if d.HasCapability(tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the descriptor.
func (d *AgentDescriptor) Clone() *AgentDescriptor {
	if d == nil {
		return nil
	}
	clone := &AgentDescriptor{
		ID:           d.ID,
		Name:         d.Name,
		RegisteredAt: d.RegisteredAt,
		LastActive:   d.LastActive,
	}
	if len(d.Capabilities) > 0 {
		clone.Capabilities = make([]string, len(d.Capabilities))
		copy(clone.Capabilities, d.Capabilities)
	}
	if d.Metadata != nil {
		clone.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
