package server

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/types"
)

// handleEvents upgrades GET /v1/agents/{id}/events to a websocket and
// streams accepted messages addressed to that agent. Delivery through this
// stream is best effort; the durable record is the session history.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteError(w, types.NewError(types.ErrInvalidArgument, "agent id is empty"), s.logger)
		return
	}
	if !s.agents.Exists(r.Context(), agentID) {
		WriteError(w, types.NewErrorf(types.ErrUnknownAgent, "agent %s is not registered", agentID), s.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	ch := s.router.Notifier().Subscribe(agentID)
	defer s.router.Notifier().Unsubscribe(agentID)

	s.logger.Info("event stream opened", zap.String("agent_id", agentID))

	// CloseRead discards inbound frames and cancels the context when the
	// peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			s.logger.Info("event stream closed", zap.String("agent_id", agentID))
			return
		case msg, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "notifier closed")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("event marshal failed", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("event write failed",
					zap.String("agent_id", agentID),
					zap.Error(err),
				)
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
