package modulepolicy_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type members map[string]models.Role

func (m members) MemberRole(_ context.Context, _ string, userID string) (models.Role, bool, error) {
	r, ok := m[userID]
	return r, ok, nil
}

const groupID = "g1"

func setup(t *testing.T) (*modulepolicy.Policy, *docstore.Memory) {
	t.Helper()
	mem := docstore.NewMemory()
	p := modulepolicy.New(permissionstore.New(mem), members{
		"admin":    models.RoleAdmin,
		"musician": models.RoleMusician,
		"member":   models.RoleMember,
	}, auth.ContextAuthenticator{}, nil, zap.NewNop())
	if _, err := p.CreateDefault(context.Background(), groupID); err != nil {
		t.Fatalf("CreateDefault failed: %v", err)
	}
	return p, mem
}

func as(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID})
}

func TestHasAccess_Defaults(t *testing.T) {
	p, _ := setup(t)
	ctx := context.Background()

	for _, mod := range models.Modules {
		for _, role := range models.Roles {
			want := mod != models.ModuleAdmin || role == models.RoleAdmin
			if got := p.HasAccess(ctx, groupID, mod, role); got != want {
				t.Errorf("HasAccess(%s, %s) = %v, want %v", mod, role, got, want)
			}
		}
	}
}

func TestHasAccess_FailClosed(t *testing.T) {
	p, mem := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		groupID string
		module  models.Module
		role    models.Role
	}{
		{name: "unknown module", groupID: groupID, module: "karaoke", role: models.RoleAdmin},
		{name: "unknown role", groupID: groupID, module: models.ModuleCalendar, role: "roadie"},
		{name: "missing matrix", groupID: "nope", module: models.ModuleCalendar, role: models.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p.HasAccess(ctx, tt.groupID, tt.module, tt.role) {
				t.Error("expected false")
			}
		})
	}

	t.Run("store error", func(t *testing.T) {
		mem.FailNext(1, errs.ErrUpstreamUnavailable)
		if p.HasAccess(ctx, groupID, models.ModuleCalendar, models.RoleAdmin) {
			t.Error("expected false on store failure")
		}
	})
}

func TestGrantRevoke(t *testing.T) {
	p, _ := setup(t)
	ctx := as("admin")

	if _, err := p.RevokeRoles(ctx, groupID, models.ModuleFinances, []models.Role{models.RoleMember, models.RoleMusician}); err != nil {
		t.Fatalf("RevokeRoles failed: %v", err)
	}
	if p.HasAccess(ctx, groupID, models.ModuleFinances, models.RoleMember) {
		t.Error("member should have lost finances")
	}
	if !p.HasAccess(ctx, groupID, models.ModuleFinances, models.RoleManager) {
		t.Error("manager should keep finances")
	}

	m, err := p.GrantRoles(ctx, groupID, models.ModuleAdmin, []models.Role{models.RoleManager, models.RoleManager})
	if err != nil {
		t.Fatalf("GrantRoles failed: %v", err)
	}
	if got := m.RolesFor(models.ModuleAdmin); !slices.Equal(got, []models.Role{models.RoleAdmin, models.RoleManager}) {
		t.Errorf("admin roles = %v", got)
	}
}

func TestChange_InvalidPolicy(t *testing.T) {
	p, _ := setup(t)
	ctx := as("admin")

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "revoke admin from admin module", run: func() error {
			_, err := p.RevokeRoles(ctx, groupID, models.ModuleAdmin, []models.Role{models.RoleAdmin})
			return err
		}},
		{name: "empty role set", run: func() error {
			_, err := p.SetRoles(ctx, groupID, models.ModuleChats, nil)
			return err
		}},
		{name: "unknown module", run: func() error {
			_, err := p.GrantRoles(ctx, groupID, "karaoke", []models.Role{models.RoleMember})
			return err
		}},
		{name: "unknown role", run: func() error {
			_, err := p.GrantRoles(ctx, groupID, models.ModuleTasks, []models.Role{"roadie"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, errs.ErrInvalidPolicy) {
				t.Errorf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}

	// Nothing was written.
	m, _ := p.Get(ctx, groupID)
	if m.Revision != 1 {
		t.Errorf("expected untouched matrix at revision 1, got %d", m.Revision)
	}
}

func TestChange_RequiresAdmin(t *testing.T) {
	p, _ := setup(t)

	for _, user := range []string{"musician", "stranger"} {
		_, err := p.GrantRoles(as(user), groupID, models.ModuleAdmin, []models.Role{models.RoleMusician})
		if !errors.Is(err, errs.ErrPermissionDenied) {
			t.Errorf("%s: expected ErrPermissionDenied, got %v", user, err)
		}
	}
	if _, err := p.GrantRoles(context.Background(), groupID, models.ModuleAdmin, nil); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Errorf("anonymous: expected ErrUnauthenticated, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	p, _ := setup(t)

	if _, role, err := p.Authorize(as("musician"), groupID, models.ModuleCalendar); err != nil || role != models.RoleMusician {
		t.Errorf("musician calendar: role=%s err=%v", role, err)
	}
	if _, _, err := p.Authorize(as("musician"), groupID, models.ModuleAdmin); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("musician admin: expected ErrPermissionDenied, got %v", err)
	}
	if _, _, err := p.Authorize(as("stranger"), groupID, models.ModuleCalendar); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("stranger: expected ErrPermissionDenied, got %v", err)
	}
}

type countingCache struct {
	modulepolicy.NoCache
	stored      map[string]models.PermissionMatrix
	invalidated int
}

func (c *countingCache) Get(_ context.Context, id string) (models.PermissionMatrix, bool, error) {
	m, ok := c.stored[id]
	return m, ok, nil
}
func (c *countingCache) Set(_ context.Context, m models.PermissionMatrix) error {
	c.stored[m.GroupID] = m
	return nil
}
func (c *countingCache) Invalidate(_ context.Context, id string) error {
	delete(c.stored, id)
	c.invalidated++
	return nil
}

func TestCache_InvalidatedOnWrite(t *testing.T) {
	p, _ := setup(t)
	c := &countingCache{stored: map[string]models.PermissionMatrix{}}
	p.WithCache(c)
	ctx := as("admin")

	if !p.HasAccess(ctx, groupID, models.ModuleTasks, models.RoleMember) {
		t.Fatal("expected default access")
	}
	if _, ok := c.stored[groupID]; !ok {
		t.Fatal("expected matrix cached after lookup")
	}
	if _, err := p.RevokeRoles(ctx, groupID, models.ModuleTasks, []models.Role{models.RoleMember}); err != nil {
		t.Fatalf("RevokeRoles failed: %v", err)
	}
	if c.invalidated == 0 {
		t.Error("expected invalidation on write")
	}
	if p.HasAccess(ctx, groupID, models.ModuleTasks, models.RoleMember) {
		t.Error("stale cache: member still has tasks")
	}
}

func TestCache_KeptOnRejectedChange(t *testing.T) {
	p, _ := setup(t)
	c := &countingCache{stored: map[string]models.PermissionMatrix{}}
	p.WithCache(c)
	ctx := as("admin")

	_, err := p.RevokeRoles(ctx, groupID, models.ModuleAdmin, []models.Role{models.RoleAdmin})
	if !errors.Is(err, errs.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	if c.invalidated != 0 {
		t.Errorf("rejected change invalidated the cache %d times", c.invalidated)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("BANDHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BANDHUB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	c := modulepolicy.NewRedisCache(client, 0)
	m := models.DefaultMatrix("redis-test-group")
	if err := c.Set(ctx, m); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := c.Get(ctx, m.GroupID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !got.Allows(models.ModuleAdmin, models.RoleAdmin) || got.Allows(models.ModuleAdmin, models.RoleMember) {
		t.Errorf("round-tripped matrix wrong: %+v", got.Entries)
	}
	if err := c.Invalidate(ctx, m.GroupID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, m.GroupID); ok {
		t.Error("expected miss after invalidate")
	}
}
