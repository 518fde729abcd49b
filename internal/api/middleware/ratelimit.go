package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/consultly/chat-service/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// routeLimit pairs an endpoint pattern with its limit. Patterns are
// matched first to last, so more specific ones come first.
type routeLimit struct {
	pattern string
	limit   RateLimit
}

// RateLimiter implements sliding window rate limiting backed by Redis.
// With a nil client every request is allowed, so deployments without
// Redis simply run unlimited.
type RateLimiter struct {
	client *redis.Client
	limits []routeLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a rate limiter with per-endpoint limits tuned
// for the chat API.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{client: client, logger: logger}

	add := func(pattern string, requests int, window time.Duration, key func(*http.Request) string) {
		rl.limits = append(rl.limits, routeLimit{pattern, RateLimit{requests, window, key}})
	}

	// Longest patterns first so "/chat/rooms" wins over "/chat/".
	add("POST /chat/rooms", 30, time.Hour, userKey)
	add("GET /chat/rooms", 120, time.Minute, userKey)
	add("GET /chat/unread-count", 120, time.Minute, userKey)
	add("PUT /chat/online-status", 60, time.Minute, userKey)
	add("GET /chat/online-users", 120, time.Minute, userKey)
	add("POST /chat/", 60, time.Minute, userKey) // message sends
	add("PUT /chat/", 120, time.Minute, userKey) // read receipts
	add("GET /chat/", 240, time.Minute, userOrIPKey)

	return rl
}

// userKey returns the rate limit key for the authenticated caller.
func userKey(r *http.Request) string {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return "ratelimit:ip:" + RealIP(r)
	}
	return "ratelimit:user:" + userID
}

// userOrIPKey returns user key if identified, otherwise IP key.
func userOrIPKey(r *http.Request) string {
	return userKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
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

// CheckAndIncrement checks rate limit and increments counter.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	windowStart := now.Add(-window)

	windowKey := fmt.Sprintf("%s:%d", key, now.Unix()/int64(window.Seconds()))

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a Redis outage must not take chat down with it.
		rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
		return true, limit, now.Add(window)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(limit), remaining, now.Add(window)
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
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
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))

			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			rl.logger.Warn().
				Str("ip", RealIP(r)).
				Str("user", r.Header.Get("X-User-Id")).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path

	for _, entry := range rl.limits {
		if strings.HasPrefix(key, entry.pattern) {
			l := entry.limit
			return &l
		}
	}
	return nil
}
