package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/gate"
	"github.com/oneagent/coordination/history"
	"github.com/oneagent/coordination/internal/metrics"
	"github.com/oneagent/coordination/session"
	"github.com/oneagent/coordination/types"
)

// Result reports the outcome of a send or broadcast call. A rejection is a
// normal result, not an error: the message carries no sequence number and
// the verdict explains why.
type Result struct {
	// Accepted indicates whether the message cleared the gate and was
	// appended to history.
	Accepted bool `json:"accepted"`

	// Message is the routed message. Seq is zero when rejected.
	Message *types.Message `json:"message"`

	// Verdict is the gate's decision.
	Verdict *types.Verdict `json:"verdict"`

	// Delivered lists recipients whose delivery channel took the message.
	Delivered []string `json:"delivered,omitempty"`

	// FailedDelivery lists recipients that could not be reached. Delivery
	// is best effort; durability is established by the history append, so
	// failures here are a warning, not an error.
	FailedDelivery []string `json:"failed_delivery,omitempty"`

	// Warning carries a DELIVERY_PARTIAL_FAILURE when FailedDelivery is
	// non-empty.
	Warning *types.Error `json:"warning,omitempty"`
}

// seqCounter serializes sequence assignment and history append for one
// session. Initialized from the store tail on first use so restarts resume
// the sequence without gaps.
type seqCounter struct {
	mu   sync.Mutex
	next uint64
	init bool
}

// Router accepts send and broadcast requests, consults the validation gate,
// and on acceptance assigns the next per-session sequence number, appends to
// history, and fans out to recipients. Sequence assignment and history
// append are mutually exclusive per session; different sessions never
// contend.
type Router struct {
	sessions  *session.Manager
	gate      *gate.Gate
	store     history.Store
	notifier  *Notifier
	collector *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	counters map[string]*seqCounter
}

// New creates a message router.
func New(sessions *session.Manager, g *gate.Gate, store history.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		sessions: sessions,
		gate:     g,
		store:    store,
		notifier: NewNotifier(logger),
		logger:   logger.With(zap.String("component", "router")),
		now:      time.Now,
		counters: make(map[string]*seqCounter),
	}
}

// WithCollector attaches a metrics collector.
func (r *Router) WithCollector(collector *metrics.Collector) *Router {
	r.collector = collector
	return r
}

// WithClock overrides the time source. For tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Notifier returns the delivery notifier for subscription by transports.
func (r *Router) Notifier() *Notifier {
	return r.notifier
}

// Send routes a message to the named recipients. An empty recipient list is
// treated as the full participant set, equivalent to Broadcast minus the
// semantic label.
func (r *Router) Send(ctx context.Context, sessionID, senderID, content string, recipients []string, payload map[string]any) (*Result, error) {
	kind := types.DeliveryDirect
	if len(recipients) == 0 {
		kind = types.DeliveryBroadcast
	}
	return r.route(ctx, sessionID, senderID, content, kind, recipients, payload)
}

// Broadcast routes a message to all current participants except the sender.
func (r *Router) Broadcast(ctx context.Context, sessionID, senderID, content string, payload map[string]any) (*Result, error) {
	return r.route(ctx, sessionID, senderID, content, types.DeliveryBroadcast, nil, payload)
}

func (r *Router) route(ctx context.Context, sessionID, senderID, content string, kind types.DeliveryKind, recipients []string, payload map[string]any) (*Result, error) {
	if senderID == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "sender id is required")
	}
	if content == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "content is required")
	}

	sess, err := r.sessions.Active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(senderID) {
		return nil, types.NewErrorf(types.ErrNotParticipant, "agent %s is not a participant of session %s", senderID, sessionID)
	}

	resolved, err := r.resolveRecipients(sess, senderID, kind, recipients)
	if err != nil {
		return nil, err
	}

	evalCtx := map[string]any{
		"session_id": sessionID,
		"topic":      sess.Topic,
		"sender":     senderID,
	}
	start := r.now()
	verdict := r.gate.Validate(ctx, content, evalCtx)
	if r.collector != nil {
		r.collector.RecordEvaluatorCall(r.now().Sub(start), gate.Unavailable(verdict))
	}

	msg := &types.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Sender:     senderID,
		Kind:       kind,
		Recipients: resolved,
		Content:    content,
		Payload:    payload,
		Verdict:    verdict,
		Timestamp:  r.now(),
	}

	if !verdict.Accepted {
		return r.reject(ctx, msg, kind)
	}
	return r.accept(ctx, msg, kind, resolved)
}

// reject records the rejection in the audit log and returns it as a normal
// result. History and sequence state are untouched.
func (r *Router) reject(ctx context.Context, msg *types.Message, kind types.DeliveryKind) (*Result, error) {
	if err := r.store.AppendRejection(ctx, msg); err != nil {
		r.logger.Warn("failed to audit rejection",
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
	}
	if r.collector != nil {
		r.collector.RecordMessage(string(kind), "rejected")
		reason := "rejected"
		if len(msg.Verdict.Reasons) > 0 {
			reason = msg.Verdict.Reasons[0]
		}
		r.collector.RecordRejection(reason)
	}
	r.logger.Info("message rejected",
		zap.String("session_id", msg.SessionID),
		zap.String("sender", msg.Sender),
		zap.Strings("reasons", msg.Verdict.Reasons),
	)
	return &Result{Accepted: false, Message: msg, Verdict: msg.Verdict}, nil
}

// accept assigns the sequence number and appends to history under the
// session's counter lock, then fans out delivery.
func (r *Router) accept(ctx context.Context, msg *types.Message, kind types.DeliveryKind, recipients []string) (*Result, error) {
	counter := r.counter(msg.SessionID)
	counter.mu.Lock()
	commitStart := r.now()
	if !counter.init {
		last, err := r.store.LastSeq(ctx, msg.SessionID)
		if err != nil {
			counter.mu.Unlock()
			return nil, err
		}
		counter.next = last + 1
		counter.init = true
	}
	msg.Seq = counter.next
	if err := r.store.Append(ctx, msg); err != nil {
		counter.mu.Unlock()
		return nil, err
	}
	counter.next++
	counter.mu.Unlock()

	if r.collector != nil {
		r.collector.RecordCommitDuration(r.now().Sub(commitStart))
		r.collector.RecordMessage(string(kind), "accepted")
	}

	r.sessions.TouchActivity(ctx, msg.SessionID)

	failed := r.notifier.Deliver(msg, recipients)
	delivered := diff(recipients, failed)
	if r.collector != nil {
		r.collector.RecordDeliveryFailures(len(failed))
	}

	result := &Result{
		Accepted:       true,
		Message:        msg,
		Verdict:        msg.Verdict,
		Delivered:      delivered,
		FailedDelivery: failed,
	}
	if len(failed) > 0 {
		result.Warning = types.NewErrorf(types.ErrDeliveryPartial,
			"message %d durable but %d of %d recipients unreachable", msg.Seq, len(failed), len(recipients))
		r.logger.Warn("partial delivery",
			zap.String("session_id", msg.SessionID),
			zap.Uint64("seq", msg.Seq),
			zap.Strings("failed", failed),
		)
	}

	r.logger.Debug("message accepted",
		zap.String("session_id", msg.SessionID),
		zap.Uint64("seq", msg.Seq),
		zap.String("kind", string(kind)),
	)
	return result, nil
}

// History returns accepted messages for the session with sequence numbers
// strictly greater than sinceSeq. The session must exist; its history stays
// readable after expiry or close.
func (r *Router) History(ctx context.Context, sessionID string, sinceSeq uint64) ([]*types.Message, error) {
	if _, err := r.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.store.Read(ctx, sessionID, sinceSeq)
}

// Rejections returns the rejection audit log for the session.
func (r *Router) Rejections(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if _, err := r.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.store.Rejections(ctx, sessionID)
}

// Close shuts down delivery channels.
func (r *Router) Close() {
	r.notifier.Close()
}

// Sweep drops sequence counters for sessions that have gone terminal or
// vanished from the store. Terminal sessions reject sends before the
// counter is touched, so dropping the entry cannot race an assignment.
// Intended for the same periodic loop that sweeps expired sessions.
func (r *Router) Sweep(ctx context.Context) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.counters))
	for id := range r.counters {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	dropped := 0
	for _, id := range ids {
		sess, err := r.sessions.Get(ctx, id)
		if err == nil && !sess.State.Terminal() {
			continue
		}
		r.mu.Lock()
		delete(r.counters, id)
		r.mu.Unlock()
		dropped++
	}
	if dropped > 0 {
		r.logger.Debug("dropped sequence counters", zap.Int("count", dropped))
	}
	return dropped
}

func (r *Router) counter(sessionID string) *seqCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[sessionID]
	if !ok {
		c = &seqCounter{}
		r.counters[sessionID] = c
	}
	return c
}

// resolveRecipients validates explicit recipients against the participant
// set, or expands the implicit broadcast set (all participants except the
// sender).
func (r *Router) resolveRecipients(sess *types.Session, senderID string, kind types.DeliveryKind, recipients []string) ([]string, error) {
	if kind == types.DeliveryBroadcast || len(recipients) == 0 {
		resolved := make([]string, 0, len(sess.Participants))
		for _, p := range sess.Participants {
			if p != senderID {
				resolved = append(resolved, p)
			}
		}
		return resolved, nil
	}

	resolved := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, recipient := range recipients {
		if recipient == "" {
			return nil, types.NewError(types.ErrInvalidArgument, "recipient id must not be empty")
		}
		if !sess.HasParticipant(recipient) {
			return nil, types.NewErrorf(types.ErrNotParticipant, "recipient %s is not a participant of session %s", recipient, sess.ID)
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		resolved = append(resolved, recipient)
	}
	return resolved, nil
}

func diff(all, exclude []string) []string {
	if len(exclude) == 0 {
		return all
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	result := make([]string, 0, len(all))
	for _, id := range all {
		if _, skip := excluded[id]; !skip {
			result = append(result, id)
		}
	}
	return result
}
