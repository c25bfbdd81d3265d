package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oneagent/coordination/config"
	"github.com/oneagent/coordination/discovery"
	"github.com/oneagent/coordination/gate"
	"github.com/oneagent/coordination/history"
	"github.com/oneagent/coordination/internal/metrics"
	"github.com/oneagent/coordination/internal/telemetry"
	"github.com/oneagent/coordination/registry"
	"github.com/oneagent/coordination/router"
	"github.com/oneagent/coordination/server"
	"github.com/oneagent/coordination/session"
	"github.com/oneagent/coordination/types"
)

// app wires the coordination components together and owns their lifecycle.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	collector *metrics.Collector
	providers *telemetry.Providers

	agents       *registry.Registry
	sessions     *session.Manager
	sessionStore session.Store
	ruleEval     *gate.RuleEvaluator
	hist         history.Store
	rtr          *router.Router
	srv          *server.Server
	watcher      *config.FileWatcher

	bgCancel context.CancelFunc
	bgGroup  *errgroup.Group
}

func newApp(cfg *config.Config, configPath string, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}

	a.collector = metrics.NewCollector("coordination", logger)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without export", zap.Error(err))
	}
	a.providers = providers

	a.agents = registry.New(&registry.Config{StaleAfter: cfg.Registry.StaleAfter}, logger)
	a.agents.Subscribe(func(event *registry.Event) {
		a.collector.RecordAgentEvent(string(event.Type))
		a.collector.SetAgentsRegistered(a.agents.Len())
	})

	disc := discovery.NewService(a.agents, logger)

	a.sessionStore, err = session.NewStore(&session.StoreConfig{
		Backend: cfg.Session.Store.Backend,
		DSN:     cfg.Session.Store.DSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	a.sessions = session.NewManager(a.sessionStore, a.agents, &session.Config{
		DefaultTTL: cfg.Session.DefaultTTL,
		MaxTTL:     cfg.Session.MaxTTL,
	}, logger).WithCollector(a.collector)

	a.ruleEval = gate.NewRuleEvaluator(gateRules(cfg.Gate.Rules))
	g := gate.New(a.ruleEval, &gate.Config{
		Timeout:   cfg.Gate.Timeout,
		RateLimit: cfg.Gate.RateLimit,
		RateBurst: cfg.Gate.RateBurst,
	}, logger)

	a.hist, err = history.NewStore(historyConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create history store: %w", err)
	}

	a.rtr = router.New(a.sessions, g, a.hist, logger).WithCollector(a.collector)

	health := server.NewHealthHandler(Version, logger)
	health.RegisterCheck(server.HealthCheckFunc{
		CheckName: "session_store",
		Probe: func(ctx context.Context) error {
			_, err := a.sessionStore.Get(ctx, "readiness-probe")
			if types.IsCode(err, types.ErrNotFound) {
				return nil
			}
			return err
		},
	})
	health.RegisterCheck(server.HealthCheckFunc{
		CheckName: "history_store",
		Probe: func(ctx context.Context) error {
			_, err := a.hist.LastSeq(ctx, "readiness-probe")
			return err
		},
	})

	a.srv, err = server.New(cfg, server.Deps{
		Registry:  a.agents,
		Discovery: disc,
		Sessions:  a.sessions,
		Router:    a.rtr,
		Collector: a.collector,
		Health:    health,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	return a, nil
}

// Start launches the HTTP server, the background sweeps, and the config
// watcher.
func (a *app) Start() error {
	if err := a.srv.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel
	a.bgGroup, ctx = errgroup.WithContext(ctx)

	if interval := a.cfg.Session.SweepInterval; interval > 0 {
		a.bgGroup.Go(func() error {
			a.runSessionSweep(ctx, interval)
			return nil
		})
	}
	if interval := a.cfg.Registry.SweepInterval; interval > 0 {
		a.bgGroup.Go(func() error {
			a.runRegistryPrune(ctx, interval)
			return nil
		})
	}

	if a.configPath != "" {
		if err := a.startConfigWatcher(ctx); err != nil {
			a.logger.Warn("config watcher unavailable, hot reload disabled", zap.Error(err))
		}
	}

	a.logger.Info("coordination service started",
		zap.String("addr", a.srv.Addr()),
		zap.String("session_backend", a.cfg.Session.Store.Backend),
		zap.String("history_backend", a.cfg.History.Backend),
	)
	return nil
}

// runSessionSweep eagerly reclaims expired sessions. Lazy checks keep the
// state machine correct without it; this only bounds storage growth.
func (a *app) runSessionSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := a.sessions.Sweep(ctx)
			if err != nil {
				a.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				a.logger.Info("session sweep reclaimed sessions", zap.Int("expired", expired))
			}
			a.rtr.Sweep(ctx)
			a.updateSessionGauges(ctx)
		}
	}
}

func (a *app) updateSessionGauges(ctx context.Context) {
	for _, state := range []types.SessionState{
		types.SessionStateActive,
		types.SessionStateExpired,
		types.SessionStateClosed,
	} {
		sessions, err := a.sessions.List(ctx, &session.Filter{State: state})
		if err != nil {
			return
		}
		a.collector.SetSessions(string(state), len(sessions))
	}
}

func (a *app) runRegistryPrune(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := a.agents.PruneStale(ctx, a.cfg.Registry.StaleAfter)
			if removed > 0 {
				a.logger.Info("pruned stale agents", zap.Int("removed", removed))
			}
			a.collector.SetAgentsRegistered(a.agents.Len())
		}
	}
}

// startConfigWatcher reloads gate rules when the config file changes. Other
// sections require a restart.
func (a *app) startConfigWatcher(ctx context.Context) error {
	watcher, err := config.NewFileWatcher([]string{a.configPath},
		config.WithWatcherLogger(a.logger),
	)
	if err != nil {
		return err
	}

	watcher.OnChange(func(event config.FileEvent) {
		a.logger.Info("config file changed",
			zap.String("path", event.Path),
			zap.String("op", event.Op.String()),
		)

		cfg, err := config.NewLoader().WithConfigPath(a.configPath).Load()
		if err != nil {
			a.logger.Error("config reload failed", zap.Error(err))
			return
		}
		if err := cfg.Validate(); err != nil {
			a.logger.Error("reloaded config is invalid, keeping previous rules", zap.Error(err))
			return
		}

		a.ruleEval.SetConfig(gateRules(cfg.Gate.Rules))
		a.logger.Info("gate rules reloaded")
	})

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	a.watcher = watcher
	return nil
}

// WaitForShutdown blocks until a shutdown signal, then tears everything
// down in reverse dependency order.
func (a *app) WaitForShutdown() {
	a.srv.WaitForShutdown()
	a.Shutdown()
}

// Shutdown stops background work and releases stores.
func (a *app) Shutdown() {
	a.logger.Info("starting graceful shutdown")

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.bgCancel != nil {
		a.bgCancel()
	}
	if a.bgGroup != nil {
		_ = a.bgGroup.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.rtr.Close()

	if err := a.hist.Close(); err != nil {
		a.logger.Error("history store close error", zap.Error(err))
	}
	if err := a.sessionStore.Close(); err != nil {
		a.logger.Error("session store close error", zap.Error(err))
	}

	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	a.logger.Info("graceful shutdown completed")
}

func gateRules(cfg config.RuleConfig) *gate.RuleConfig {
	return &gate.RuleConfig{
		MaxContentLength: cfg.MaxContentLength,
		BlockedKeywords:  cfg.BlockedKeywords,
		WarnLengthRatio:  cfg.WarnLengthRatio,
		MinScore:         cfg.MinScore,
	}
}

func historyConfig(cfg *config.Config) *history.Config {
	hc := &history.Config{Backend: cfg.History.Backend}
	if cfg.History.Backend == "redis" {
		hc.Redis = &history.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.History.KeyPrefix,
		}
	}
	return hc
}
