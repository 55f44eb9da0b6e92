package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nwws-alert/ingest/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(cfg *config.Config) *Gate {
	return New(cfg, zerolog.Nop())
}

func baseConfig() *config.Config {
	return &config.Config{
		APIKeys: map[string]*config.APIKey{
			"key1": {Name: "dashboard", Active: true, RateLimit: 2},
		},
		RateLimit: config.RateLimitConfig{WindowMs: 60000, DefaultMax: 60},
	}
}

func signedRequest(t *testing.T, key, method, path string, at time.Time) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", at.UnixMilli())
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("X-Request-Time", ts)
	req.Header.Set("X-Signature", Sign(key, ts, method, path))
	return req
}

func TestMiddleware_ValidSignature_Passes(t *testing.T) {
	cfg := baseConfig()
	g := newTestGate(cfg)

	req := signedRequest(t, "key1", http.MethodGet, "/alerts", time.Now().UTC())
	rec := httptest.NewRecorder()

	called := false
	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, cfg.APIKeys["key1"].LastUsed.IsZero())
}

func TestMiddleware_BadSignature_Rejected(t *testing.T) {
	cfg := baseConfig()
	g := newTestGate(cfg)

	req := signedRequest(t, "key1", http.MethodGet, "/alerts", time.Now().UTC())
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()

	called := false
	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_StaleTimestamp_Rejected(t *testing.T) {
	cfg := baseConfig()
	g := newTestGate(cfg)

	req := signedRequest(t, "key1", http.MethodGet, "/alerts", time.Now().UTC().Add(-10*time.Minute))
	rec := httptest.NewRecorder()

	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a stale timestamp")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_UnknownKey_Rejected(t *testing.T) {
	cfg := baseConfig()
	g := newTestGate(cfg)

	req := signedRequest(t, "not-a-real-key", http.MethodGet, "/alerts", time.Now().UTC())
	rec := httptest.NewRecorder()

	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for an unknown key")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_WhitelistedOrigin_BypassesSignature(t *testing.T) {
	cfg := baseConfig()
	cfg.DomainWhitelist = []string{"example.com"}
	g := newTestGate(cfg)

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()

	called := false
	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RateLimit_ExceedsConfiguredMax(t *testing.T) {
	cfg := baseConfig()
	g := newTestGate(cfg)

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var lastCode int
	for i := 0; i < 5; i++ {
		req := signedRequest(t, "key1", http.MethodGet, "/alerts", time.Now().UTC())
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestCORS_PreflightReturnsNoContentWithoutInvokingHandler(t *testing.T) {
	cfg := baseConfig()
	cfg.DomainWhitelist = []string{"example.com"}
	g := newTestGate(cfg)

	req := httptest.NewRequest(http.MethodOptions, "/alerts", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	g.CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("wrapped handler should not run for an OPTIONS preflight")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSign_IsDeterministicAndInputSensitive(t *testing.T) {
	sig1 := Sign("key1", "1000", http.MethodGet, "/alerts")
	sig2 := Sign("key1", "1000", http.MethodGet, "/alerts")
	sig3 := Sign("key1", "1000", http.MethodGet, "/other")

	require.Equal(t, sig1, sig2)
	assert.NotEqual(t, sig1, sig3)
}
