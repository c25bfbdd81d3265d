package types

import "time"

// DeliveryKind distinguishes targeted delivery from session-wide broadcast.
type DeliveryKind string

const (
	// DeliveryDirect targets one or more named recipients.
	DeliveryDirect DeliveryKind = "direct"
	// DeliveryBroadcast targets all current session participants.
	DeliveryBroadcast DeliveryKind = "broadcast"
)

// Message is a validated, sequence-numbered message within a session.
type Message struct {
	// ID is the unique message identifier.
	ID string `json:"id"`

	// SessionID is the session the message belongs to.
	SessionID string `json:"session_id"`

	// Sender is the sending agent id.
	Sender string `json:"sender"`

	// Seq is the per-session sequence number. Strictly increasing and
	// gap-free for accepted messages, starting at 1. Zero for rejected
	// messages, which never consume a sequence number.
	Seq uint64 `json:"seq"`

	// Kind is the delivery kind.
	Kind DeliveryKind `json:"kind"`

	// Recipients is the resolved recipient set. For broadcasts this is the
	// participant set at send time, minus the sender.
	Recipients []string `json:"recipients,omitempty"`

	// Content is the natural-language message content.
	Content string `json:"content"`

	// Payload contains optional structured data alongside the content.
	Payload map[string]any `json:"payload,omitempty"`

	// Verdict is the validation verdict attached by the gate. Immutable
	// once set.
	Verdict *Verdict `json:"verdict,omitempty"`

	// Timestamp is when the router accepted or rejected the message.
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if len(m.Recipients) > 0 {
		clone.Recipients = make([]string, len(m.Recipients))
		copy(clone.Recipients, m.Recipients)
	}
	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}
	if m.Verdict != nil {
		v := *m.Verdict
		if len(m.Verdict.Reasons) > 0 {
			v.Reasons = make([]string, len(m.Verdict.Reasons))
			copy(v.Reasons, m.Verdict.Reasons)
		}
		clone.Verdict = &v
	}
	return &clone
}

// Verdict is the validation gate's decision about a message. Produced once
// per message and immutable once attached.
type Verdict struct {
	// Accepted indicates whether the content cleared the gate.
	Accepted bool `json:"accepted"`

	// Score is the numeric quality score in the range 0 to 100.
	Score float64 `json:"score"`

	// Reasons lists violations or concerns. Empty for clean accepts.
	Reasons []string `json:"reasons,omitempty"`
}
