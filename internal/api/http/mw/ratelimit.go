package mw

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ethtrader/internal/config"
	"ethtrader/internal/security"
	rds "ethtrader/internal/stores/redis"
	"ethtrader/pkg/httputil"

	"github.com/redis/go-redis/v9"
)

type RateLimitMiddleware struct {
	Cfg      config.RateLimitConfig
	Rdb      *rds.Client
	Verifier *security.RS256Verifier // not necessarily
	now      func() time.Time
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *rds.Client, verifier *security.RS256Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("redis client cannot be nil")
	}

	c := *cfg
	// sane defaults
	if c.ByJWT.TTL == 0 {
		c.ByJWT.TTL = 2 * time.Minute
	}
	if c.ByIP.TTL == 0 {
		c.ByIP.TTL = 2 * time.Minute
	}
	return &RateLimitMiddleware{Cfg: c, Rdb: rdb, Verifier: verifier, now: time.Now}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := m.now()

		// by ip
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		okIP, leftIP := m.allow(ctx, m.key("ip", ip), now, m.Cfg.ByIP)
		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.Cfg.ByIP.Burst))
		w.Header().Set("X-RateLimit-Remaining-IP", strconv.FormatInt(leftIP, 10))

		// by JWT if exists/valid
		okJWT := true
		retryBucket := m.Cfg.ByIP

		sub := subjectFromContext(r)
		if sub == "" && m.Verifier != nil {
			if cl, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				sub = cl.ClientID()
			}
		}
		if sub != "" {
			var leftJWT int64
			okJWT, leftJWT = m.allow(ctx, m.key("jwt", sub), now, m.Cfg.ByJWT)
			w.Header().Set("X-RateLimit-Limit-JWT", strconv.Itoa(m.Cfg.ByJWT.Burst))
			w.Header().Set("X-RateLimit-Remaining-JWT", strconv.FormatInt(leftJWT, 10))
			if !okJWT {
				retryBucket = m.Cfg.ByJWT
			}
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", strconv.Itoa(calculateRetryAfter(retryBucket)))
			_ = httputil.Error(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) key(kind, id string) string {
	return m.Rdb.Prefix + "rl:" + kind + ":" + id
}

func subjectFromContext(r *http.Request) string {
	if c := ClaimsFromContext(r.Context()); c != nil {
		return c.ClientID()
	}
	return ""
}

// seconds until one token is back in the bucket
func calculateRetryAfter(b config.RateBucket) int {
	if b.RefillPerSec <= 0 {
		return int(b.TTL.Seconds())
	}
	return int(math.Max(1, math.Ceil(1/float64(b.RefillPerSec))))
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = redis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

-- read state
local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

-- replenish
if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, math.floor(tokens)}
`)

func clientIP(r *http.Request) string {
	// return user IP among the proxy IPs
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// allow fails open: a redis error never blocks traffic
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, int64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Slice()
	if err != nil || len(res) < 2 {
		return true, int64(b.Burst)
	}

	allowed, _ := res[0].(int64)
	left, _ := res[1].(int64)

	return allowed == 1, left
}
