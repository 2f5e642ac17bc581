package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Pattern  string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// blockAfter violations within an hour blocks the offender for a day.
const blockAfter = 10

// RateLimiter implements sliding window rate limiting. It runs after
// authentication so write limits follow the user rather than the address.
type RateLimiter struct {
	client           *redis.Client
	limits           []RateLimit
	blocker          *Blocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// DefaultLimits are the per-endpoint limits. The first matching prefix wins.
func DefaultLimits() []RateLimit {
	return []RateLimit{
		{"PUT /users/me", 20, time.Hour, userOrIPKey},
		{"GET /users", 60, time.Minute, userOrIPKey},
		{"POST /rooms/", 30, time.Minute, userOrIPKey},
		{"POST /dm/", 60, time.Minute, userOrIPKey},
		{"GET /stream/", 30, time.Minute, userOrIPKey},
		{"GET /rooms/", 120, time.Minute, userOrIPKey},
		{"GET /dm/", 120, time.Minute, userOrIPKey},
		{"GET /inbox", 120, time.Minute, userOrIPKey},
	}
}

// NewRateLimiter creates a new rate limiter with DefaultLimits.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		limits:           DefaultLimits(),
		blocker:          NewBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			rl.whitelistIPs[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		rl.whitelist = append(rl.whitelist, ipNet)
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// WithLimits replaces the endpoint limits.
func (rl *RateLimiter) WithLimits(limits []RateLimit) *RateLimiter {
	rl.limits = limits
	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// userOrIPKey keys by the authenticated user, falling back to client IP.
func userOrIPKey(r *http.Request) string {
	return "ratelimit:" + subject(r)
}

// subject names who a request is accounted to: "user:<id>" or "ip:<addr>".
func subject(r *http.Request) string {
	if u := GetUserFromContext(r.Context()); u != nil && u.ID != "" {
		return "user:" + u.ID
	}
	return "ip:" + RealIP(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// slidingWindow admits a request only while fewer than ARGV[3] requests are
// recorded in the last ARGV[2] ms. Rejected requests are not recorded.
// Returns {admitted, count, oldest score}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local admitted = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
return {admitted, count, first}
`)

// CheckAndIncrement records one request against key if it fits in the
// sliding window. Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)

	res, err := slidingWindow.Run(ctx, rl.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, member).Int64Slice()
	if err != nil || len(res) != 3 {
		// Fail open while Redis is unreachable.
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, now.Add(window)
	}

	remaining := limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMilli(res[2]).Add(window)
	return res[0] == 1, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		who := subject(r)
		if rl.blocker.IsBlocked(r.Context(), "ip:"+ip, who) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("subject", who).
				Str("endpoint", r.URL.Path).
				Msg("blocked client attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()
			rl.trackViolation(r.Context(), who)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path
	for i := range rl.limits {
		if strings.HasPrefix(key, rl.limits[i].Pattern) {
			l := rl.limits[i]
			return &l
		}
	}
	return nil
}

// trackViolation counts violations per subject and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, who string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := "violations:" + who
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("subject", who).Msg("violation tracking failed")
		return
	}

	if count := incr.Val(); count >= blockAfter {
		rl.blocker.Block(ctx, who, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "auto_blocked").
			Str("subject", who).
			Int64("violations", count).
			Msg("client auto-blocked for repeated violations")
	}
}

// Blocker manages temporary blocks of users and addresses. Subjects are
// "user:<id>" or "ip:<addr>".
type Blocker struct {
	client *redis.Client
}

// NewBlocker creates a new blocker.
func NewBlocker(client *redis.Client) *Blocker {
	return &Blocker{client: client}
}

// IsBlocked reports whether any of the subjects is blocked.
func (b *Blocker) IsBlocked(ctx context.Context, subjects ...string) bool {
	keys := make([]string, len(subjects))
	for i, s := range subjects {
		keys[i] = "blocked:" + s
	}
	n, _ := b.client.Exists(ctx, keys...).Result()
	return n > 0
}

// Block blocks a subject for the specified duration.
func (b *Blocker) Block(ctx context.Context, subject string, duration time.Duration, reason string) {
	b.client.Set(ctx, "blocked:"+subject, reason, duration)
}

// Unblock lifts a block.
func (b *Blocker) Unblock(ctx context.Context, subject string) {
	b.client.Del(ctx, "blocked:"+subject)
}
