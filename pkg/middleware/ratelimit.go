/**
 * @description
 * Rate limiting middleware for abuse-prone endpoints such as login. Each hit is
 * counted in a fixed window per scope and client IP. Redis serves multi-instance
 * deployments; the in-memory limiter is the single-process fallback.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Per-window counters updated in a MULTI/EXEC pipeline.
 *
 * @notes
 * - The middleware fails open: a limiter error is logged and the request proceeds.
 */
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule allows Limit hits per Window. A zero Rule disables limiting.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) enabled() bool { return r.Limit > 0 && r.Window > 0 }

// Decision is the outcome of counting one hit against a Rule.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the current window ends; zero when limiting is disabled.
	ResetAt time.Time
}

// RetryAfter is the wait before a denied client may try again, at least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

func decide(count int, rule Rule, resetAt time.Time) Decision {
	return Decision{Allowed: count <= rule.Limit, Remaining: max(rule.Limit-count, 0), ResetAt: resetAt}
}

// Limiter counts one hit for key and decides whether it is within rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// RedisLimiter shares counters between API instances. Windows are aligned to
// multiples of the rule's window, and every window gets its own key, so a
// counter never needs its expiry repaired.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "avs:rate_limit"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// windowKey names the counter for key in the window starting at start.
func (r *RedisLimiter) windowKey(key string, start time.Time) string {
	return r.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if r == nil || r.client == nil || !rule.enabled() || strings.TrimSpace(key) == "" {
		return Decision{Allowed: true, Remaining: rule.Limit}, nil
	}
	length := max(rule.Window, time.Second)
	start := r.now().Truncate(length)
	resetAt := start.Add(length)
	counterKey := r.windowKey(key, start)

	var hits *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, counterKey)
		// One extra window of retention absorbs clock skew between instances.
		pipe.ExpireAt(ctx, counterKey, resetAt.Add(length))
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("count %s: %w", counterKey, err)
	}
	return decide(int(hits.Val()), rule, resetAt), nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a single-process limiter. A window opens on a client's first
// hit and lasts rule.Window.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: map[string]*window{}, now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	if !rule.enabled() || key == "" {
		return Decision{Allowed: true, Remaining: rule.Limit}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.prune(now)
		w = &window{resetAt: now.Add(rule.Window)}
		m.windows[key] = w
	}
	w.count++
	return decide(w.count, rule, w.resetAt), nil
}

// prune drops expired windows so idle clients do not accumulate.
func (m *MemoryLimiter) prune(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

// RateLimit answers 429 once a client exceeds rule within scope. Clients are
// told apart by IP.
func RateLimit(limiter Limiter, scope string, rule Rule, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), scope+":"+ClientIP(r), rule)
			if err != nil {
				logger.Warn("rate limiter unavailable; allowing request", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if rule.enabled() {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			if !decision.Allowed {
				wait := decision.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Too many requests. Please try again later."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Run chi's RealIP middleware
// first when behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
