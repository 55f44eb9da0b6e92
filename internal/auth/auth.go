// Package auth is the request-validation middleware around protected HTTP
// routes: origin allow-list, HMAC bearer-key signing, and a windowed
// rate limiter. Built as a config struct plus
// func(http.Handler) http.Handler factories that log every rejection,
// validating an HMAC-SHA256 request-signing scheme.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nwws-alert/ingest/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Gate holds the configuration an incoming request is checked against.
// Config is read each request, so an operator rotating keys via a
// config reload takes effect without restarting the Gate.
type Gate struct {
	cfg *config.Config
	log zerolog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New constructs a Gate over cfg.
func New(cfg *config.Config, log zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, log: log, limiters: make(map[string]*rate.Limiter)}
}

// errorBody is the shape of every rejection response.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Status: "ERROR", Message: message})
}

// originAllowed reports whether Origin or Referer contains any configured
// whitelist substring.
func (g *Gate) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	referer := r.Header.Get("Referer")
	for _, domain := range g.cfg.DomainWhitelist {
		if domain == "" {
			continue
		}
		if strings.Contains(origin, domain) || strings.Contains(referer, domain) {
			return true
		}
	}
	return false
}

// Middleware enforces the ordered request checks around next. Passing
// origin or the no-origin bypass admits the request without a signature;
// everything else requires a valid HMAC-signed bearer key.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.originAllowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		if g.cfg.AllowNoOrigin && r.Header.Get("Origin") == "" && r.Header.Get("Referer") == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			g.log.Warn().Str("path", r.URL.Path).Msg("auth rejected: missing bearer token")
			writeRejection(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		entry, ok := g.cfg.APIKeys[apiKey]
		if !ok || !entry.Active {
			g.log.Warn().Str("path", r.URL.Path).Msg("auth rejected: unknown or inactive key")
			writeRejection(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		timestampHeader := r.Header.Get("X-Request-Time")
		if !freshTimestamp(timestampHeader, time.Now().UTC()) {
			g.log.Warn().Str("path", r.URL.Path).Msg("auth rejected: stale or missing timestamp")
			writeRejection(w, http.StatusUnauthorized, "Stale request timestamp")
			return
		}

		signature := r.Header.Get("X-Signature")
		if !validSignature(apiKey, timestampHeader, r.Method, r.URL.Path, signature) {
			g.log.Warn().Str("path", r.URL.Path).Msg("auth rejected: bad signature")
			writeRejection(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		if !g.allow(apiKey, entry, clientIP(r)) {
			g.log.Warn().Str("api_key_name", entry.Name).Str("path", r.URL.Path).Msg("auth rejected: rate limit exceeded")
			writeRejection(w, http.StatusTooManyRequests, "Rate limit exceeded, please try again later")
			return
		}

		entry.LastUsed = time.Now().UTC()
		next.ServeHTTP(w, r)
	})
}

// freshTimestamp requires that the header parse as a Unix
// milliseconds timestamp within +/-5 minutes of now.
func freshTimestamp(header string, now time.Time) bool {
	if header == "" {
		return false
	}
	ms, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return false
	}
	ts := time.UnixMilli(ms).UTC()
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 5*time.Minute
}

// Sign computes the HMAC-SHA256 signature the client must send, for use by
// tests and trusted server-to-server callers.
func Sign(key, timestamp, method, path string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + method + path))
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(key, timestamp, method, path, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(key, timestamp, method, path)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// allow enforces the windowed per-key-per-IP limiter.
// Each distinct "<apiKey>_<clientIp>" bucket gets its own token-bucket
// limiter sized to the key's configured max, or the configured default.
func (g *Gate) allow(apiKey string, entry *config.APIKey, ip string) bool {
	maxReq := entry.RateLimit
	if maxReq <= 0 {
		maxReq = g.cfg.RateLimit.DefaultMax
	}
	windowMs := g.cfg.RateLimit.WindowMs
	if windowMs <= 0 {
		windowMs = 60000
	}
	bucketKey := apiKey + "_" + ip

	g.limitersMu.Lock()
	limiter, ok := g.limiters[bucketKey]
	if !ok {
		window := time.Duration(windowMs) * time.Millisecond
		limiter = rate.NewLimiter(rate.Limit(float64(maxReq)/window.Seconds()), maxReq)
		g.limiters[bucketKey] = limiter
	}
	g.limitersMu.Unlock()

	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}

// CORS enforces the cross-origin policy: origin
// must match the allow-list, and OPTIONS preflights always return 204
// without reaching the wrapped handler.
func (g *Gate) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && g.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-Time,X-Signature")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
