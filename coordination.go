// Package coordination provides a top-level convenience entry point for
// embedding the coordination components in-process without the HTTP
// transport.
//
// Usage:
//
//	import "github.com/oneagent/coordination"
//
//	sys, err := coordination.New(nil, logger)
//	sys.Registry.Register(ctx, desc)
//	sys.Router.Send(ctx, sessionID, sender, content, recipients, nil)
//
// Every component is also usable on its own; this package only wires the
// default in-memory stack.
package coordination

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/config"
	"github.com/oneagent/coordination/discovery"
	"github.com/oneagent/coordination/gate"
	"github.com/oneagent/coordination/history"
	"github.com/oneagent/coordination/registry"
	"github.com/oneagent/coordination/router"
	"github.com/oneagent/coordination/session"
)

// Version is the library version.
const Version = "0.1.0"

// System aggregates the coordination components over shared stores.
type System struct {
	Registry  *registry.Registry
	Discovery *discovery.Service
	Sessions  *session.Manager
	Gate      *gate.Gate
	Router    *router.Router
	History   history.Store

	sessionStore session.Store
}

// New wires a complete coordination system from config. A nil config
// selects in-memory stores and the built-in rule evaluator.
func New(cfg *config.Config, logger *zap.Logger) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	agents := registry.New(&registry.Config{StaleAfter: cfg.Registry.StaleAfter}, logger)
	disc := discovery.NewService(agents, logger)

	sessionStore, err := session.NewStore(&session.StoreConfig{
		Backend: cfg.Session.Store.Backend,
		DSN:     cfg.Session.Store.DSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	sessions := session.NewManager(sessionStore, agents, &session.Config{
		DefaultTTL: cfg.Session.DefaultTTL,
		MaxTTL:     cfg.Session.MaxTTL,
	}, logger)

	evaluator := gate.NewRuleEvaluator(&gate.RuleConfig{
		MaxContentLength: cfg.Gate.Rules.MaxContentLength,
		BlockedKeywords:  cfg.Gate.Rules.BlockedKeywords,
		WarnLengthRatio:  cfg.Gate.Rules.WarnLengthRatio,
		MinScore:         cfg.Gate.Rules.MinScore,
	})
	g := gate.New(evaluator, &gate.Config{
		Timeout:   cfg.Gate.Timeout,
		RateLimit: cfg.Gate.RateLimit,
		RateBurst: cfg.Gate.RateBurst,
	}, logger)

	hist, err := history.NewStore(&history.Config{Backend: cfg.History.Backend})
	if err != nil {
		sessionStore.Close()
		return nil, fmt.Errorf("create history store: %w", err)
	}

	rtr := router.New(sessions, g, hist, logger)

	return &System{
		Registry:     agents,
		Discovery:    disc,
		Sessions:     sessions,
		Gate:         g,
		Router:       rtr,
		History:      hist,
		sessionStore: sessionStore,
	}, nil
}

// Close releases the router's delivery channels and the backing stores.
func (s *System) Close() error {
	s.Router.Close()
	histErr := s.History.Close()
	sessErr := s.sessionStore.Close()
	if histErr != nil {
		return histErr
	}
	return sessErr
}
