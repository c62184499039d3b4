// Package timeouts holds the deadlines applied to store and upstream calls.
//
// Guidelines:
//   - Ping: health checks
//   - Short: single document reads
//   - Medium: queries and single document writes
//   - Long: operations touching several documents (group create, leave)
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

// Config holds timeout overrides. Zero values keep the current setting.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

var (
	mu      sync.RWMutex
	current = defaults()
)

func defaults() Config {
	return Config{Ping: DefaultPing, Short: DefaultShort, Medium: DefaultMedium, Long: DefaultLong}
}

func Ping() time.Duration   { return Current().Ping }
func Short() time.Duration  { return Current().Short }
func Medium() time.Duration { return Current().Medium }
func Long() time.Duration   { return Current().Long }

// Current returns the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Configure applies the non-zero fields of cfg.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&current.Ping, cfg.Ping)
	set(&current.Short, cfg.Short)
	set(&current.Medium, cfg.Medium)
	set(&current.Long, cfg.Long)
}

// Reset restores the defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = defaults()
}

// WithTimeout derives a context with the given timeout. The returned cancel
// logs a warning when the operation ran out of time.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
