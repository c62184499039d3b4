package indexes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/indexes"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("EnsureAll #%d failed: %v", i+1, err)
		}
	}
}

func TestEnsureAll_CreatesUniqueIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	tests := []struct {
		collection string
		name       string
	}{
		{"users", "uniq_users_email"},
		{"groups", "uniq_groups_code"},
		{"groups", "idx_groups_members"},
		{"finance_records", "idx_finance_group_date"},
	}
	for _, tt := range tests {
		cur, err := db.Collection(tt.collection).Indexes().List(ctx)
		if err != nil {
			t.Fatalf("List indexes on %s failed: %v", tt.collection, err)
		}
		found := false
		for cur.Next(ctx) {
			var idx bson.M
			if err := cur.Decode(&idx); err == nil && idx["name"] == tt.name {
				found = true
			}
		}
		cur.Close(ctx)
		if !found {
			t.Errorf("expected index %s on %s", tt.name, tt.collection)
		}
	}
}

func TestApplyUnique(t *testing.T) {
	mem := docstore.NewMemory()
	indexes.ApplyUnique(mem)
	ctx := context.Background()

	if err := mem.Put(ctx, userstore.Collection, "u1", bson.M{"email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	err := mem.Put(ctx, userstore.Collection, "u2", bson.M{"email": "a@example.com"})
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}
