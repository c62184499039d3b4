package groupstore_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	"github.com/dalemusser/bandhub/internal/app/system/indexes"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/dalemusser/bandhub/internal/testutil"
	"go.uber.org/zap"
)

// backends returns the in-memory store and, when configured, MongoDB.
func backends(t *testing.T) map[string]docstore.Store {
	t.Helper()
	mem := docstore.NewMemory()
	indexes.ApplyUnique(mem)
	out := map[string]docstore.Store{"memory": mem}
	if os.Getenv(testutil.MongoURIEnv) != "" {
		db := testutil.SetupTestDB(t)
		ctx, cancel := testutil.TestContext()
		defer cancel()
		if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("EnsureAll failed: %v", err)
		}
		out["mongo"] = docstore.NewMongo(db)
	}
	return out
}

func newGroup(id, code, admin string) models.Group {
	g := models.Group{ID: id, Name: "  The Reds  ", Code: code, CreatedBy: admin}
	g.Admit(admin, models.RoleAdmin)
	return g
}

func TestStore_Create(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := groupstore.New(s)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			created, err := store.Create(ctx, newGroup("g1", "AB12CD", "u1"))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if created.Name != "The Reds" {
				t.Errorf("expected trimmed name, got %q", created.Name)
			}
			if created.NameCI == "" {
				t.Error("expected NameCI to be set")
			}
			if created.Status != groupstore.StatusActive {
				t.Errorf("expected status active, got %q", created.Status)
			}
			if created.Revision != 1 {
				t.Errorf("expected revision 1, got %d", created.Revision)
			}
			if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
				t.Error("expected timestamps to be set")
			}
		})
	}
}

func TestStore_Create_DuplicateCode(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := groupstore.New(s)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			if _, err := store.Create(ctx, newGroup("g1", "AB12CD", "u1")); err != nil {
				t.Fatal(err)
			}
			_, err := store.Create(ctx, newGroup("g2", "AB12CD", "u2"))
			if !errors.Is(err, groupstore.ErrDuplicateCode) {
				t.Errorf("expected ErrDuplicateCode, got %v", err)
			}
		})
	}
}

func TestStore_Create_Invalid(t *testing.T) {
	store := groupstore.New(docstore.NewMemory())
	ctx := context.Background()

	tests := []struct {
		name string
		g    models.Group
	}{
		{name: "lowercase code", g: newGroup("g1", "ab12cd", "u1")},
		{name: "short code", g: newGroup("g1", "AB1", "u1")},
		{name: "no id", g: newGroup("", "AB12CD", "u1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.g); !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestStore_GetByCode(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := groupstore.New(s)
			ctx, cancel := testutil.TestContext()
			defer cancel()
			_, _ = store.Create(ctx, newGroup("g1", "AB12CD", "u1"))

			g, err := store.GetByCode(ctx, "AB12CD")
			if err != nil || g.ID != "g1" {
				t.Fatalf("GetByCode = %v, %v", g.ID, err)
			}
			if _, err := store.GetByCode(ctx, "ZZZZZZ"); !errors.Is(err, errs.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			inUse, err := store.CodeInUse(ctx, "AB12CD")
			if err != nil || !inUse {
				t.Errorf("CodeInUse = %v, %v", inUse, err)
			}
		})
	}
}

func TestStore_Mutate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := groupstore.New(s)
			ctx, cancel := testutil.TestContext()
			defer cancel()
			created, _ := store.Create(ctx, newGroup("g1", "AB12CD", "u1"))

			g, err := store.Mutate(ctx, "g1", func(g *models.Group) error {
				g.AddPending("u2")
				return nil
			})
			if err != nil {
				t.Fatalf("Mutate failed: %v", err)
			}
			if !g.IsPending("u2") || g.Revision != created.Revision+1 {
				t.Errorf("pending=%v rev=%d", g.PendingMembers, g.Revision)
			}

			// Breaking the membership invariant is refused.
			_, err = store.Mutate(ctx, "g1", func(g *models.Group) error {
				g.Members = append(g.Members, "u2")
				g.MemberRoles["u2"] = models.RoleMember
				return nil
			})
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}

			role, ok, err := store.MemberRole(ctx, "g1", "u1")
			if err != nil || !ok || role != models.RoleAdmin {
				t.Errorf("MemberRole = %q %v %v", role, ok, err)
			}
			if _, ok, _ := store.MemberRole(ctx, "g1", "u2"); ok {
				t.Error("pending user reported as member")
			}

			mine, err := store.ListByMember(ctx, "u1")
			if err != nil || len(mine) != 1 {
				t.Errorf("ListByMember = %d, %v", len(mine), err)
			}
		})
	}
}
