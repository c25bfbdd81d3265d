package types

import "time"

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// SessionStateCreated is the transient initial state. createSession
	// promotes it to active synchronously, so it is never observed by
	// callers outside the manager.
	SessionStateCreated SessionState = "created"
	// SessionStateActive indicates the session accepts joins and messages.
	SessionStateActive SessionState = "active"
	// SessionStateExpired indicates the expiration timestamp has passed.
	// Terminal.
	SessionStateExpired SessionState = "expired"
	// SessionStateClosed indicates a participant closed the session
	// explicitly. Terminal.
	SessionStateClosed SessionState = "closed"
)

// Terminal reports whether the state accepts no further joins or messages.
func (s SessionState) Terminal() bool {
	return s == SessionStateExpired || s == SessionStateClosed
}

// Session is a bounded conversation context among a set of agents.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// Topic is the conversation topic or context label.
	Topic string `json:"topic,omitempty"`

	// Participants is the agent id membership in insertion order.
	// Set semantics: joining twice does not duplicate.
	Participants []string `json:"participants"`

	// CreatedBy is the agent id that created the session.
	CreatedBy string `json:"created_by,omitempty"`

	// State is the current lifecycle state.
	State SessionState `json:"state"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActivity is refreshed by joins and accepted messages.
	LastActivity time.Time `json:"last_activity"`

	// ExpiresAt is the absolute expiration timestamp.
	ExpiresAt time.Time `json:"expires_at"`
}

// HasParticipant reports whether the agent id is a current participant.
func (s *Session) HasParticipant(agentID string) bool {
	for _, p := range s.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the session's expiration timestamp has passed at
// the given instant. The state transition itself is owned by the session
// manager; this is the pure time comparison it applies.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if len(s.Participants) > 0 {
		clone.Participants = make([]string, len(s.Participants))
		copy(clone.Participants, s.Participants)
	}
	return &clone
}
