// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/indexes"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when configured, Redis.
//
// The document store handed to the core is the Mongo backend wrapped in
// the upstream retry policy.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().ApplyURI(appCfg.MongoURI)
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(appCfg.MongoDatabase)
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		Store: docstore.WithRetry(docstore.NewMongo(db), logger).
			SetPolicy(appCfg.UpstreamAttempts, appCfg.UpstreamBackoff),
	}

	if appCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// The cache is optional; run without it.
			logger.Warn("redis unavailable, permission cache disabled",
				zap.String("addr", appCfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			deps.Redis = rdb
			logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr))
		}
	}
	return deps, nil
}

// EnsureSchema creates the unique and lookup indexes. An in-memory store
// gets the same unique constraints.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if m, ok := deps.Store.(*docstore.Memory); ok {
		indexes.ApplyUnique(m)
		return nil
	}
	if deps.MongoDatabase == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
