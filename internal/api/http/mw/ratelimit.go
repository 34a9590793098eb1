package mw

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"referralstats/internal/config"
	"referralstats/internal/security"
	rds "referralstats/internal/stores/redis"
)

const defaultBucketTTL = 2 * time.Minute

type RateLimitMiddleware struct {
	Rdb      *rds.Client
	Cfg      config.RateLimitConfig
	Verifier *security.RS256Verifier // optional, to limit by subject before JWTMiddleware ran
	Prefix   string
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *rds.Client, verifier *security.RS256Verifier) (*RateLimitMiddleware, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the rate limiter")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the rate limiter")
	}

	c := *cfg
	if c.ByJWT.TTL == 0 {
		c.ByJWT.TTL = defaultBucketTTL
	}
	if c.ByIP.TTL == 0 {
		c.ByIP.TTL = defaultBucketTTL
	}

	return &RateLimitMiddleware{Rdb: rdb, Cfg: c, Verifier: verifier, Prefix: "refstats:rl:"}, nil
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		// by ip
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		okIP, leftIP := m.allow(ctx, m.Prefix+"ip:"+ip, now, m.Cfg.ByIP)
		setLimitHeaders(w, "IP", m.Cfg.ByIP.Burst, leftIP)

		// by JWT subject if exists/valid
		okJWT := true
		if sub := m.subject(r); sub != "" {
			var left int64
			okJWT, left = m.allow(ctx, m.Prefix+"jwt:"+sub, now, m.Cfg.ByJWT)
			setLimitHeaders(w, "JWT", m.Cfg.ByJWT.Burst, left)
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) subject(r *http.Request) string {
	if c := ClaimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	if m.Verifier == nil {
		return ""
	}
	// try to parse ourselves
	if c, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
		return c.Subject
	}
	return ""
}

func setLimitHeaders(w http.ResponseWriter, suffix string, burst int, left int64) {
	w.Header().Set("X-RateLimit-Limit-"+suffix, strconv.Itoa(burst))
	w.Header().Set("X-RateLimit-Remaining-"+suffix, strconv.FormatInt(left, 10))
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

// allow fails open: an unreachable redis never blocks ingestion.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucketConfig) (bool, int64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = int(defaultBucketTTL.Seconds())
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64Slice()
	if err != nil || len(res) < 2 {
		return true, 0
	}

	return res[0] == 1, res[1]
}
