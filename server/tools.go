package server

import (
	"net/http"
	"time"

	"github.com/oneagent/coordination/discovery"
	"github.com/oneagent/coordination/session"
	"github.com/oneagent/coordination/types"
)

// toolHandlers maps tool names to their handlers. Every coordination
// operation is exposed as POST /v1/tools/{tool} with a JSON body.
func (s *Server) toolHandlers() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"register_agent":      s.handleRegisterAgent,
		"deregister_agent":    s.handleDeregisterAgent,
		"heartbeat":           s.handleHeartbeat,
		"discover_agents":     s.handleDiscoverAgents,
		"create_session":      s.handleCreateSession,
		"join_session":        s.handleJoinSession,
		"get_session":         s.handleGetSession,
		"list_sessions":       s.handleListSessions,
		"close_session":       s.handleCloseSession,
		"extend_session":      s.handleExtendSession,
		"send_message":        s.handleSendMessage,
		"broadcast_message":   s.handleBroadcastMessage,
		"get_message_history": s.handleGetMessageHistory,
	}
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	fn, ok := s.tools[tool]
	if !ok {
		WriteError(w, types.NewErrorf(types.ErrNotFound, "unknown tool %q", tool), s.logger)
		return
	}
	fn(w, r)
}

// resolveSessionID prefers the request body's session id and falls back to
// the session correlation header. Header lookup is case-insensitive.
func (s *Server) resolveSessionID(r *http.Request, bodyID string) string {
	if bodyID != "" {
		return bodyID
	}
	return r.Header.Get(s.sessionHeader)
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	desc, err := s.agents.Register(r.Context(), &types.AgentDescriptor{
		ID:           req.ID,
		Name:         req.Name,
		Capabilities: req.Capabilities,
		Metadata:     req.Metadata,
	})
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, desc)
}

func (s *Server) handleDeregisterAgent(w http.ResponseWriter, r *http.Request) {
	var req DeregisterAgentRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.ID == "" {
		WriteError(w, types.NewError(types.ErrInvalidArgument, "agent id is empty"), s.logger)
		return
	}

	s.agents.Deregister(r.Context(), req.ID)
	WriteSuccess(w, DeregisterAgentResponse{Deregistered: true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.ID == "" {
		WriteError(w, types.NewError(types.ErrInvalidArgument, "agent id is empty"), s.logger)
		return
	}

	if err := s.agents.Heartbeat(r.Context(), req.ID); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	desc, err := s.agents.Get(r.Context(), req.ID)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, HeartbeatResponse{
		ID:         desc.ID,
		LastActive: desc.LastActive.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDiscoverAgents(w http.ResponseWriter, r *http.Request) {
	var req DiscoverAgentsRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	agents, err := s.disc.Discover(r.Context(), &discovery.Request{
		Capabilities: req.Capabilities,
		Mode:         req.Mode,
		Limit:        req.Limit,
	})
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, DiscoverAgentsResponse{Agents: agents})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	ttl, err := parseOptionalDuration(req.TTL)
	if err != nil {
		WriteError(w, types.NewErrorf(types.ErrInvalidArgument, "invalid ttl %q", req.TTL).WithCause(err), s.logger)
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Participants, req.Topic, req.CreatedBy, ttl)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, sess)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	sess, err := s.sessions.Join(r.Context(), s.resolveSessionID(r, req.SessionID), req.AgentID)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	var req GetSessionRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	sess, err := s.sessions.Get(r.Context(), s.resolveSessionID(r, req.SessionID))
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var req ListSessionsRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	sessions, err := s.sessions.List(r.Context(), &session.Filter{
		Participant: req.Participant,
		State:       req.State,
	})
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, ListSessionsResponse{Sessions: sessions})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req CloseSessionRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	sess, err := s.sessions.Close(r.Context(), s.resolveSessionID(r, req.SessionID), req.AgentID)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, sess)
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	var req ExtendSessionRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	extra, err := time.ParseDuration(req.Extension)
	if err != nil {
		WriteError(w, types.NewErrorf(types.ErrInvalidArgument, "invalid extension %q", req.Extension).WithCause(err), s.logger)
		return
	}

	sess, err := s.sessions.Extend(r.Context(), s.resolveSessionID(r, req.SessionID), req.AgentID, extra)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, sess)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	result, err := s.router.Send(r.Context(), s.resolveSessionID(r, req.SessionID), req.Sender, req.Content, req.Recipients, req.Payload)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	// A gate rejection is a successful tool call carrying a negative
	// verdict, not a transport error.
	WriteSuccess(w, result)
}

func (s *Server) handleBroadcastMessage(w http.ResponseWriter, r *http.Request) {
	var req BroadcastMessageRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	result, err := s.router.Broadcast(r.Context(), s.resolveSessionID(r, req.SessionID), req.Sender, req.Content, req.Payload)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, result)
}

func (s *Server) handleGetMessageHistory(w http.ResponseWriter, r *http.Request) {
	var req GetMessageHistoryRequest
	if err := DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}

	sessionID := s.resolveSessionID(r, req.SessionID)

	var (
		messages []*types.Message
		err      error
	)
	if req.Rejected {
		messages, err = s.router.Rejections(r.Context(), sessionID)
	} else {
		messages, err = s.router.History(r.Context(), sessionID, req.SinceSeq)
	}
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, GetMessageHistoryResponse{Messages: messages})
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
