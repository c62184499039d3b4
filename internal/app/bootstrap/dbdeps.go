// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Store is what the core talks to. MongoClient and MongoDatabase are nil
// when Store is an in-memory backend. Redis is nil when the permission
// cache is disabled.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Store         docstore.Store
	Redis         *redis.Client
}
