package server

import (
	"github.com/oneagent/coordination/discovery"
	"github.com/oneagent/coordination/types"
)

// RegisterAgentRequest registers or re-registers an agent.
type RegisterAgentRequest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DeregisterAgentRequest removes an agent from the registry.
type DeregisterAgentRequest struct {
	ID string `json:"id"`
}

// DeregisterAgentResponse acknowledges a deregistration.
type DeregisterAgentResponse struct {
	Deregistered bool `json:"deregistered"`
}

// HeartbeatRequest refreshes an agent's liveness timestamp.
type HeartbeatRequest struct {
	ID string `json:"id"`
}

// HeartbeatResponse reports the refreshed liveness state.
type HeartbeatResponse struct {
	ID         string `json:"id"`
	LastActive string `json:"last_active"`
}

// DiscoverAgentsRequest is the wire form of a discovery query.
type DiscoverAgentsRequest struct {
	Capabilities []string           `json:"capabilities,omitempty"`
	Mode         discovery.MatchMode `json:"mode,omitempty"`
	Limit        int                `json:"limit,omitempty"`
}

// DiscoverAgentsResponse lists the matched descriptors.
type DiscoverAgentsResponse struct {
	Agents []*types.AgentDescriptor `json:"agents"`
}

// CreateSessionRequest starts a new session. TTL is a Go duration string
// such as "30m"; empty selects the configured default.
type CreateSessionRequest struct {
	Participants []string `json:"participants"`
	Topic        string   `json:"topic,omitempty"`
	CreatedBy    string   `json:"created_by"`
	TTL          string   `json:"ttl,omitempty"`
}

// JoinSessionRequest adds an agent to a session. SessionID may be omitted
// when the session correlation header is set.
type JoinSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id"`
}

// GetSessionRequest fetches one session.
type GetSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// ListSessionsRequest lists sessions with optional filters.
type ListSessionsRequest struct {
	Participant string             `json:"participant,omitempty"`
	State       types.SessionState `json:"state,omitempty"`
}

// ListSessionsResponse carries the matching sessions.
type ListSessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

// CloseSessionRequest closes a session on behalf of a participant.
type CloseSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id"`
}

// ExtendSessionRequest pushes a session's expiration out by Extension,
// a Go duration string such as "15m".
type ExtendSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id"`
	Extension string `json:"extension"`
}

// SendMessageRequest routes a message. Empty Recipients means broadcast.
type SendMessageRequest struct {
	SessionID  string         `json:"session_id,omitempty"`
	Sender     string         `json:"sender"`
	Content    string         `json:"content"`
	Recipients []string       `json:"recipients,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// BroadcastMessageRequest routes a message to every other participant.
type BroadcastMessageRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Sender    string         `json:"sender"`
	Content   string         `json:"content"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// GetMessageHistoryRequest reads session history. SinceSeq returns only
// messages with sequence numbers strictly greater than it. Rejected
// switches to the rejection audit log instead of the durable history.
type GetMessageHistoryRequest struct {
	SessionID string `json:"session_id,omitempty"`
	SinceSeq  uint64 `json:"since_seq,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
}

// GetMessageHistoryResponse carries ordered messages.
type GetMessageHistoryResponse struct {
	Messages []*types.Message `json:"messages"`
}
