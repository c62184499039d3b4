// Package ratelimit counts attempts per key in fixed windows.
//
// Counters live in process memory or in Redis so that several API
// instances share one budget. A counter failure allows the attempt; the
// limiter never locks users out because its own backend is down.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrTooManyAttempts is returned when a key has used up its window.
var ErrTooManyAttempts = errors.New("too many attempts")

// Counter increments the attempt count for key, starting a window of the
// given length on the first attempt.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// MemoryCounter is a process-local Counter. Expired windows are pruned
// lazily on Incr.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	pruned  time.Time
}

type window struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*window), now: time.Now}
}

// SetClock overrides the time source. Used in tests.
func (c *MemoryCounter) SetClock(now func() time.Time) { c.now = now }

func (c *MemoryCounter) Incr(_ context.Context, key string, d time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.pruned) > d {
		for k, w := range c.windows {
			if now.After(w.expiresAt) {
				delete(c.windows, k)
			}
		}
		c.pruned = now
	}
	w, ok := c.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(d)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

// RedisCounter keeps counters in Redis under "ratelimit:<key>".
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, d time.Duration) (int64, error) {
	k := "ratelimit:" + key
	n, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.client.Expire(ctx, k, d).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.client.Del(ctx, "ratelimit:"+key).Err()
}

// Limiter allows limit attempts per key per window.
type Limiter struct {
	counter Counter
	prefix  string
	limit   int64
	window  time.Duration
	log     *zap.Logger
}

// New builds a Limiter. prefix separates the key spaces of limiters that
// share a counter.
func New(counter Counter, prefix string, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{counter: counter, prefix: prefix, limit: int64(limit), window: window, log: logger}
}

// Allow records an attempt for key and reports whether it is within the
// limit.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	n, err := l.counter.Incr(ctx, l.prefix+":"+key, l.window)
	if err != nil {
		l.log.Warn("rate limit counter failed; allowing", zap.String("limiter", l.prefix), zap.Error(err))
		return true
	}
	return n <= l.limit
}

// Reset forgets the attempts recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) {
	if err := l.counter.Reset(ctx, l.prefix+":"+key); err != nil {
		l.log.Warn("rate limit reset failed", zap.String("limiter", l.prefix), zap.Error(err))
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP,
// then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LoginConfig sets the sign-in budgets.
type LoginConfig struct {
	IPLimit     int
	IPWindow    time.Duration
	EmailLimit  int
	EmailWindow time.Duration
}

// DefaultLoginConfig allows 10 attempts per address per minute and 5 per
// account per 5 minutes.
var DefaultLoginConfig = LoginConfig{
	IPLimit:     10,
	IPWindow:    time.Minute,
	EmailLimit:  5,
	EmailWindow: 5 * time.Minute,
}

// LoginGuard limits sign-in attempts both per client address and per
// account email.
type LoginGuard struct {
	ip    *Limiter
	email *Limiter
}

func NewLoginGuard(counter Counter, cfg LoginConfig, logger *zap.Logger) *LoginGuard {
	return &LoginGuard{
		ip:    New(counter, "login-ip", cfg.IPLimit, cfg.IPWindow, logger),
		email: New(counter, "login-email", cfg.EmailLimit, cfg.EmailWindow, logger),
	}
}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Check records an attempt and returns ErrTooManyAttempts when either
// budget is spent.
func (g *LoginGuard) Check(ctx context.Context, r *http.Request, email string) error {
	if !g.ip.Allow(ctx, ClientIP(r)) {
		return ErrTooManyAttempts
	}
	if k := emailKey(email); k != "" && !g.email.Allow(ctx, k) {
		return ErrTooManyAttempts
	}
	return nil
}

// Succeeded clears the account budget after a good sign-in.
func (g *LoginGuard) Succeeded(ctx context.Context, email string) {
	if k := emailKey(email); k != "" {
		g.email.Reset(ctx, k)
	}
}
