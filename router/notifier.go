package router

import (
	"sync"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

const defaultChannelBuffer = 100

// Notifier fans accepted messages out to per-agent delivery channels.
// Delivery is best effort: a subscriber with a full channel, or no channel
// at all, counts as a delivery failure but never blocks the sender or
// affects the durable history.
type Notifier struct {
	mu        sync.RWMutex
	channels  map[string]chan *types.Message
	buffer    int
	closed    bool
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewNotifier creates a notifier with the default per-agent buffer.
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		channels: make(map[string]chan *types.Message),
		buffer:   defaultChannelBuffer,
		logger:   logger.With(zap.String("component", "notifier")),
	}
}

// Subscribe opens (or returns) the delivery channel for an agent.
func (n *Notifier) Subscribe(agentID string) <-chan *types.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan *types.Message)
		close(ch)
		return ch
	}
	ch, ok := n.channels[agentID]
	if !ok {
		ch = make(chan *types.Message, n.buffer)
		n.channels[agentID] = ch
	}
	return ch
}

// Unsubscribe closes and removes the agent's delivery channel.
func (n *Notifier) Unsubscribe(agentID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ch, ok := n.channels[agentID]; ok {
		close(ch)
		delete(n.channels, agentID)
	}
}

// Deliver pushes the message to each recipient's channel without blocking.
// Returns the recipients that could not be reached.
func (n *Notifier) Deliver(msg *types.Message, recipients []string) (failed []string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return append(failed, recipients...)
	}

	for _, recipient := range recipients {
		ch, ok := n.channels[recipient]
		if !ok {
			failed = append(failed, recipient)
			continue
		}
		select {
		case ch <- msg:
		default:
			n.logger.Debug("delivery channel full",
				zap.String("recipient", recipient),
				zap.String("msg_id", msg.ID),
			)
			failed = append(failed, recipient)
		}
	}
	return failed
}

// Close closes all delivery channels. Safe to call more than once.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		n.closed = true
		for _, ch := range n.channels {
			close(ch)
		}
		n.channels = make(map[string]chan *types.Message)
	})
}
