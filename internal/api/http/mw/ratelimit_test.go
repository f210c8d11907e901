package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ethtrader/internal/config"
	"ethtrader/internal/security"
	"ethtrader/internal/stores/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &redis.Client{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Prefix: "test:",
	}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func createTestRateLimitConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		Enabled: true,
		ByIP:    config.RateBucket{RefillPerSec: 10, Burst: 20, TTL: 2 * time.Minute},
		ByJWT:   config.RateBucket{RefillPerSec: 50, Burst: 100, TTL: 2 * time.Minute},
	}
}

// frozen clock so refill never kicks in between requests
func frozen(m *RateLimitMiddleware) *RateLimitMiddleware {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }
	return m
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip, authHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/price", nil)
	req.RemoteAddr = ip + ":12345"
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}

// ========== Constructor Tests ==========

func TestNewRateLimit(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cfg := createTestRateLimitConfig()

	t.Run("panic_when_config_is_nil", func(t *testing.T) {
		assert.Panics(t, func() { NewRateLimit(nil, rdb, nil) })
	})

	t.Run("panic_when_redis_is_nil", func(t *testing.T) {
		assert.Panics(t, func() { NewRateLimit(cfg, nil, nil) })
	})

	t.Run("successful_creation_without_verifier", func(t *testing.T) {
		middleware := NewRateLimit(cfg, rdb, nil)
		assert.Equal(t, *cfg, middleware.Cfg)
		assert.Equal(t, rdb, middleware.Rdb)
		assert.Nil(t, middleware.Verifier)
	})

	t.Run("sets_default_ttl_when_zero", func(t *testing.T) {
		middleware := NewRateLimit(&config.RateLimitConfig{
			ByIP:  config.RateBucket{RefillPerSec: 10, Burst: 20},
			ByJWT: config.RateBucket{RefillPerSec: 50, Burst: 100},
		}, rdb, nil)
		assert.Equal(t, 2*time.Minute, middleware.Cfg.ByIP.TTL)
		assert.Equal(t, 2*time.Minute, middleware.Cfg.ByJWT.TTL)
	})
}

// ========== Handler Tests - IP Rate Limiting ==========

func TestRateLimitMiddleware_Handler_IPLimit(t *testing.T) {
	mr, rdb := setupTestRedis(t)

	middleware := frozen(NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 2, Burst: 3, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 100, Burst: 100, TTL: time.Minute},
	}, rdb, nil))

	calls := 0
	handler := middleware.Handler(okHandler(&calls))

	// First 3 requests should pass (burst = 3)
	for i := 1; i <= 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.168.1.100", ""))

		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit-IP"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining-IP"))
	}
	assert.Equal(t, 3, calls)

	// 4th request should be rate limited
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("192.168.1.100", ""))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining-IP"))
	assert.Equal(t, 3, calls, "next handler should not be called")

	assert.True(t, mr.Exists("test:rl:ip:192.168.1.100"))
	assert.Greater(t, mr.TTL("test:rl:ip:192.168.1.100"), time.Duration(0))
}

func TestRateLimitMiddleware_Handler_DifferentIPsIndependent(t *testing.T) {
	_, rdb := setupTestRedis(t)

	middleware := frozen(NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
	}, rdb, nil))

	calls := 0
	handler := middleware.Handler(okHandler(&calls))

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom(ip, ""))
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 3, calls)
}

func TestRateLimitMiddleware_Handler_Refill(t *testing.T) {
	_, rdb := setupTestRedis(t)

	middleware := NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
	}, rdb, nil)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	middleware.now = func() time.Time { return at }

	calls := 0
	handler := middleware.Handler(okHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.9", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.9", ""))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	at = at.Add(1500 * time.Millisecond)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.9", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

// ========== Handler Tests - JWT Rate Limiting ==========

func TestRateLimitMiddleware_Handler_JWTLimit(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	privKey, pubKey := generateTestKeys(t)

	middleware := frozen(NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 100, Burst: 100, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 2, TTL: time.Minute},
	}, rdb, &security.RS256Verifier{PubKey: pubKey}))

	calls := 0
	handler := middleware.Handler(okHandler(&calls))
	auth := "Bearer " + createTestToken(t, privKey, "desk-7", "ethtrader", "ethtrader-auth", time.Hour)

	// same subject from different IPs shares one bucket
	for i, ip := range []string{"10.1.0.1", "10.1.0.2"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom(ip, auth))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit-JWT"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.1.0.3", auth))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining-JWT"))
	assert.Equal(t, 2, calls)
	assert.True(t, mr.Exists("test:rl:jwt:desk-7"))

	// an invalid token falls back to IP limiting only
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.1.0.4", "Bearer garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit-JWT"))
}

func TestRateLimitMiddleware_Handler_SubjectFromContext(t *testing.T) {
	_, rdb := setupTestRedis(t)
	privKey, pubKey := generateTestKeys(t)

	jwtMW, err := NewJWTMiddleware(&security.RS256Verifier{PubKey: pubKey})
	require.NoError(t, err)
	rl := frozen(NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 100, Burst: 100},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 1},
	}, rdb, nil))

	calls := 0
	handler := jwtMW.Handler(rl.Handler(okHandler(&calls)))
	auth := "Bearer " + createTestToken(t, privKey, "desk-9", "a", "b", time.Hour)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.2.0.1", auth))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.2.0.2", auth))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, calls)
}

// ========== Helpers ==========

func TestCalculateRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		bucket config.RateBucket
		want   int
	}{
		{"fast_refill", config.RateBucket{RefillPerSec: 50}, 1},
		{"one_per_second", config.RateBucket{RefillPerSec: 1}, 1},
		{"no_refill_uses_ttl", config.RateBucket{TTL: 2 * time.Minute}, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateRetryAfter(tt.bucket))
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote_addr", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"remote_addr_without_port", "203.0.113.7", nil, "203.0.113.7"},
		{"xff_first_hop", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"x_real_ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.3"}, "198.51.100.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

// ========== Integration ==========

func TestRateLimitMiddleware_Integration_RedisFailure(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	middleware := frozen(NewRateLimit(&config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 1, Burst: 1},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 1},
	}, rdb, nil))

	mr.Close()

	calls := 0
	handler := middleware.Handler(okHandler(&calls))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.9.9.9", ""))
		assert.Equal(t, http.StatusOK, rec.Code, "redis outage must fail open")
	}
	assert.Equal(t, 3, calls)
}
