package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oneagent/coordination/config"
)

func authedHandler(t *testing.T, cfg config.AuthConfig) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return Chain(next, BearerAuth(cfg, []string{"/health"}, zaptest.NewLogger(t)))
}

func doGet(t *testing.T, h http.Handler, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestBearerAuthDisabled(t *testing.T) {
	h := authedHandler(t, config.AuthConfig{Enabled: false})
	assert.Equal(t, http.StatusNoContent, doGet(t, h, "/v1/tools/list_sessions", ""))
}

func TestBearerAuthStaticToken(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, BearerToken: "s3cret"}
	h := authedHandler(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, doGet(t, h, "/v1/tools/list_sessions", ""))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, h, "/v1/tools/list_sessions", "wrong"))
	assert.Equal(t, http.StatusNoContent, doGet(t, h, "/v1/tools/list_sessions", "s3cret"))
}

func TestBearerAuthSkipPaths(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, BearerToken: "s3cret"}
	h := authedHandler(t, cfg)

	assert.Equal(t, http.StatusNoContent, doGet(t, h, "/health", ""))
}

func TestBearerAuthJWT(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, JWTSecret: "hs256-secret"}
	h := authedHandler(t, cfg)

	sign := func(secret string, exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "agent-a1",
			"exp": exp.Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}

	assert.Equal(t, http.StatusNoContent,
		doGet(t, h, "/v1/tools/list_sessions", sign("hs256-secret", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized,
		doGet(t, h, "/v1/tools/list_sessions", sign("other-secret", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized,
		doGet(t, h, "/v1/tools/list_sessions", sign("hs256-secret", time.Now().Add(-time.Hour))))
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	h := Chain(next, RequestID())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-fixed", seen)
	assert.Equal(t, "req-fixed", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Chain(next, Recovery(zaptest.NewLogger(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tools/heartbeat", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/agents/:id/events", normalizePath("/v1/agents/agent-42/events"))
	assert.Equal(t, "/v1/tools/send_message", normalizePath("/v1/tools/send_message"))
	assert.Equal(t, "/health", normalizePath("/health"))
}
