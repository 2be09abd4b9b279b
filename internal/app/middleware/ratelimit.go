// Package middleware holds the HTTP-layer cross-cutting concerns shared
// by every route: rate limiting here, request metrics in
// internal/app/metrics. Grounded on the teacher's
// infrastructure/middleware/ratelimit.go: one golang.org/x/time/rate
// limiter per client, lazily created, swept by a background janitor.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/metrics"
)

// window is one independent rate budget (spec §5/§6: agentcp enforces
// both a per-second burst limit and a per-day ceiling per client IP).
type window struct {
	rateLimit rate.Limit
	burst     int
	limiters  map[string]*rate.Limiter
	lastSeen  map[string]time.Time
	mu        sync.Mutex
}

func newWindow(r rate.Limit, burst int) *window {
	return &window{rateLimit: r, burst: burst, limiters: map[string]*rate.Limiter{}, lastSeen: map[string]time.Time{}}
}

func (w *window) allow(client string) bool {
	w.mu.Lock()
	limiter, ok := w.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(w.rateLimit, w.burst)
		w.limiters[client] = limiter
	}
	w.lastSeen[client] = time.Now()
	w.mu.Unlock()
	return limiter.Allow()
}

func (w *window) sweep(idleAfter time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := time.Now().Add(-idleAfter)
	for client, seen := range w.lastSeen {
		if seen.Before(cutoff) {
			delete(w.limiters, client)
			delete(w.lastSeen, client)
		}
	}
}

// RateLimiter enforces independent per-second and per-day budgets per
// client IP (spec §5).
type RateLimiter struct {
	perSecond *window
	perDay    dailyCounter
	redis     *redisDailyCounter
	stop      chan struct{}
}

// Config carries the two windows' limits. RedisAddr is optional: when set,
// the per-day budget is enforced by a shared Redis counter instead of the
// in-memory window, so a fleet of agentcpd instances behind a load balancer
// share one ceiling per client instead of one per process.
type Config struct {
	PerSecondLimit int
	PerDayLimit    int
	RedisAddr      string
}

// New constructs a RateLimiter and starts its background cleanup.
func New(cfg Config) *RateLimiter {
	rl := &RateLimiter{
		perSecond: newWindow(rate.Limit(cfg.PerSecondLimit), cfg.PerSecondLimit),
		stop:      make(chan struct{}),
	}
	if cfg.RedisAddr != "" {
		rl.redis = newRedisDailyCounter(cfg.RedisAddr, cfg.PerDayLimit)
		rl.perDay = rl.redis
	} else {
		rl.perDay = newWindow(rate.Limit(float64(cfg.PerDayLimit)/86400.0), cfg.PerDayLimit)
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.perSecond.sweep(time.Hour)
			if mem, ok := rl.perDay.(*window); ok {
				mem.sweep(48 * time.Hour)
			}
		case <-rl.stop:
			return
		}
	}
}

// Stop halts the background cleanup goroutine and, if configured, closes
// the Redis connection backing the per-day counter.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
	if rl.redis != nil {
		_ = rl.redis.close()
	}
}

// Handler wraps next, rejecting requests that exceed either window with
// the RateLimitExceeded-equivalent 429 response.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !rl.perDay.allow(client) {
			metrics.RecordRateLimitRejection("per_day")
			writeRateLimited(w)
			return
		}
		if !rl.perSecond.allow(client) {
			metrics.RecordRateLimitRejection("per_second")
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(apierrors.Envelope{Error: "RateLimitExceeded"})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
