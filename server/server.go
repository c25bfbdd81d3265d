package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oneagent/coordination/config"
	"github.com/oneagent/coordination/discovery"
	"github.com/oneagent/coordination/internal/metrics"
	internalserver "github.com/oneagent/coordination/internal/server"
	"github.com/oneagent/coordination/registry"
	"github.com/oneagent/coordination/router"
	"github.com/oneagent/coordination/session"
)

// Deps are the coordination components the transport exposes.
type Deps struct {
	Registry  *registry.Registry
	Discovery *discovery.Service
	Sessions  *session.Manager
	Router    *router.Router
	Collector *metrics.Collector
	Health    *HealthHandler
}

// Server is the HTTP tool-call transport: every coordination operation is a
// named tool behind POST /v1/tools/{tool}, plus a websocket event stream,
// health probes, and the metrics endpoint.
type Server struct {
	cfg           *config.Config
	agents        *registry.Registry
	disc          *discovery.Service
	sessions      *session.Manager
	router        *router.Router
	collector     *metrics.Collector
	health        *HealthHandler
	logger        *zap.Logger
	manager       *internalserver.Manager
	tools         map[string]http.HandlerFunc
	sessionHeader string
}

// New assembles the transport. All Deps fields except Collector and Health
// are required.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Registry == nil || deps.Discovery == nil || deps.Sessions == nil || deps.Router == nil {
		return nil, fmt.Errorf("server: registry, discovery, sessions, and router are required")
	}

	sessionHeader := cfg.Server.SessionHeader
	if sessionHeader == "" {
		sessionHeader = config.DefaultSessionHeader
	}

	health := deps.Health
	if health == nil {
		health = NewHealthHandler("", logger)
	}

	s := &Server{
		cfg:           cfg,
		agents:        deps.Registry,
		disc:          deps.Discovery,
		sessions:      deps.Sessions,
		router:        deps.Router,
		collector:     deps.Collector,
		health:        health,
		logger:        logger.With(zap.String("component", "transport")),
		sessionHeader: sessionHeader,
	}
	s.tools = s.toolHandlers()

	s.manager = internalserver.NewManager(s.Handler(), internalserver.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return s, nil
}

// Handler builds the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tools/{tool}", s.handleTool)
	mux.HandleFunc("GET /v1/agents/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	skipAuth := []string{"/health", "/healthz", "/ready", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		middlewares = append(middlewares, Metrics(s.collector))
	}
	middlewares = append(middlewares, BearerAuth(s.cfg.Auth, skipAuth, s.logger))

	return Chain(mux, middlewares...)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	return s.manager.Start()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.manager.Shutdown(ctx)
}

// WaitForShutdown blocks until a shutdown signal or serve failure.
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.manager.Addr()
}
