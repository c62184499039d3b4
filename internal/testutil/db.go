// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoURIEnv names the variable that enables MongoDB-backed tests.
const MongoURIEnv = "BANDHUB_TEST_MONGO_URI"

// TestContext returns a context bounded for a single test.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SetupTestDB connects to the server named by BANDHUB_TEST_MONGO_URI and
// returns a fresh database that is dropped when the test ends. The test
// is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set; skipping MongoDB test", MongoURIEnv)
	}

	ctx, cancel := TestContext()
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to test MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping test MongoDB: %v", err)
	}

	name := fmt.Sprintf("bandhub_test_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	db := client.Database(name)
	t.Cleanup(func() {
		ctx, cancel := TestContext()
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// MongoStore returns a docstore over a fresh test database, or skips.
func MongoStore(t *testing.T) *docstore.Mongo {
	t.Helper()
	return docstore.NewMongo(SetupTestDB(t))
}
