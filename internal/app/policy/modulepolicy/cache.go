package modulepolicy

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
)

// Cache is a read-through cache of permission matrices. Misses report
// ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, groupID string) (m models.PermissionMatrix, ok bool, err error)
	Set(ctx context.Context, m models.PermissionMatrix) error
	Invalidate(ctx context.Context, groupID string) error
}

// NoCache disables caching.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (models.PermissionMatrix, bool, error) {
	return models.PermissionMatrix{}, false, nil
}
func (NoCache) Set(context.Context, models.PermissionMatrix) error { return nil }
func (NoCache) Invalidate(context.Context, string) error           { return nil }

// DefaultCacheTTL bounds how stale a cached matrix can be when an
// invalidation is lost.
const DefaultCacheTTL = 5 * time.Minute

// RedisCache keeps bson-encoded matrices in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps client. ttl <= 0 uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "bandhub:permissions:"}
}

func (c *RedisCache) key(groupID string) string { return c.prefix + groupID }

func (c *RedisCache) Get(ctx context.Context, groupID string) (models.PermissionMatrix, bool, error) {
	b, err := c.client.Get(ctx, c.key(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PermissionMatrix{}, false, nil
	}
	if err != nil {
		return models.PermissionMatrix{}, false, err
	}
	var m models.PermissionMatrix
	if err := bson.Unmarshal(b, &m); err != nil {
		// Corrupt entry; drop it and treat as a miss.
		_ = c.client.Del(ctx, c.key(groupID)).Err()
		return models.PermissionMatrix{}, false, nil
	}
	return m, true, nil
}

func (c *RedisCache) Set(ctx context.Context, m models.PermissionMatrix) error {
	b, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(m.GroupID), b, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, c.key(groupID)).Err()
}
