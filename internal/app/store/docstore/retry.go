package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Default upstream retry policy: three attempts, exponential backoff.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 100 * time.Millisecond
)

// Retrying wraps a Store and retries calls that fail with
// errs.ErrUpstreamUnavailable. Other errors are returned immediately.
type Retrying struct {
	next     Store
	log      *zap.Logger
	attempts uint64
	base     time.Duration
}

// WithRetry wraps next with the default upstream retry policy.
func WithRetry(next Store, logger *zap.Logger) *Retrying {
	return &Retrying{next: next, log: logger, attempts: DefaultAttempts, base: DefaultBackoff}
}

// SetPolicy overrides attempts and base backoff. Zero values are ignored.
func (r *Retrying) SetPolicy(attempts int, base time.Duration) *Retrying {
	if attempts > 0 {
		r.attempts = uint64(attempts)
	}
	if base > 0 {
		r.base = base
	}
	return r
}

// Ping is not retried; health checks want the current answer.
func (r *Retrying) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Retrying) do(ctx context.Context, op, collection string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.base))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && errors.Is(err, errs.ErrUpstreamUnavailable) {
			r.log.Warn("store call failed, retrying",
				zap.String("op", op),
				zap.String("collection", collection),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Retrying) Get(ctx context.Context, collection, id string) (raw bson.Raw, err error) {
	err = r.do(ctx, "get", collection, func(ctx context.Context) error {
		raw, err = r.next.Get(ctx, collection, id)
		return err
	})
	return raw, err
}

func (r *Retrying) Query(ctx context.Context, collection string, filters ...Filter) (out []bson.Raw, err error) {
	err = r.do(ctx, "query", collection, func(ctx context.Context) error {
		out, err = r.next.Query(ctx, collection, filters...)
		return err
	})
	return out, err
}

func (r *Retrying) Put(ctx context.Context, collection, id string, doc any) error {
	return r.do(ctx, "put", collection, func(ctx context.Context) error {
		return r.next.Put(ctx, collection, id, doc)
	})
}

func (r *Retrying) Update(ctx context.Context, collection, id string, mutate Mutator) (raw bson.Raw, err error) {
	err = r.do(ctx, "update", collection, func(ctx context.Context) error {
		raw, err = r.next.Update(ctx, collection, id, mutate)
		return err
	})
	return raw, err
}

func (r *Retrying) Delete(ctx context.Context, collection, id string) error {
	return r.do(ctx, "delete", collection, func(ctx context.Context) error {
		return r.next.Delete(ctx, collection, id)
	})
}
