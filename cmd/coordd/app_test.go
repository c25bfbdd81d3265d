package main

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oneagent/coordination/config"
)

func TestHistoryConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.History.Backend = "redis"
	cfg.History.KeyPrefix = "coord:"
	cfg.Redis.Addr = "redis.internal:6379"
	cfg.Redis.DB = 2

	hc := historyConfig(cfg)
	assert.Equal(t, "redis", hc.Backend)
	require.NotNil(t, hc.Redis)
	assert.Equal(t, "redis.internal:6379", hc.Redis.Addr)
	assert.Equal(t, 2, hc.Redis.DB)
	assert.Equal(t, "coord:", hc.Redis.KeyPrefix)

	cfg.History.Backend = "memory"
	assert.Nil(t, historyConfig(cfg).Redis)
}

func TestGateRulesMapping(t *testing.T) {
	rules := gateRules(config.RuleConfig{
		MaxContentLength: 128,
		BlockedKeywords:  []string{"drop table"},
		WarnLengthRatio:  0.9,
		MinScore:         40,
	})
	assert.Equal(t, 128, rules.MaxContentLength)
	assert.Equal(t, []string{"drop table"}, rules.BlockedKeywords)
	assert.InDelta(t, 0.9, rules.WarnLengthRatio, 1e-9)
	assert.InDelta(t, 40, rules.MinScore, 1e-9)
}

func TestAppStartAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Session.SweepInterval = 10 * time.Millisecond
	cfg.Registry.SweepInterval = 10 * time.Millisecond

	a, err := newApp(cfg, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, a.Start())

	_, port, err := net.SplitHostPort(a.srv.Addr())
	require.NoError(t, err)
	base := "http://127.0.0.1:" + port

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.Shutdown()

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}
