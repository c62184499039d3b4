package testutil

import (
	"context"
	"net/http"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WithChiURLParam adds a chi URL parameter to the request context.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// As returns a context signed in as userID.
func As(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID})
}

// WithUser signs r in as userID, bypassing the middleware.
func WithUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: userID}))
}

// Fixtures writes test data straight into a docstore.
type Fixtures struct {
	s docstore.Store
	t *testing.T
}

func NewFixtures(t *testing.T, s docstore.Store) *Fixtures {
	t.Helper()
	return &Fixtures{s: s, t: t}
}

// CreateUser stores a user with the given name and email.
func (f *Fixtures) CreateUser(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	u, err := userstore.New(f.s).Create(ctx, models.User{Name: name, Email: email})
	if err != nil {
		f.t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// CreateGroup stores a group with code, admin adminID and the default
// permission matrix, bypassing the directory.
func (f *Fixtures) CreateGroup(ctx context.Context, name, code, adminID string) models.Group {
	f.t.Helper()
	g := models.Group{ID: uuid.NewString(), Name: name, Code: code, CreatedBy: adminID}
	g.Admit(adminID, models.RoleAdmin)
	created, err := groupstore.New(f.s).Create(ctx, g)
	if err != nil {
		f.t.Fatalf("create group %s: %v", name, err)
	}
	if _, err := permissionstore.New(f.s).Put(ctx, models.DefaultMatrix(created.ID)); err != nil {
		f.t.Fatalf("create permissions for %s: %v", name, err)
	}
	return created
}

// AddMember admits userID to groupID with role.
func (f *Fixtures) AddMember(ctx context.Context, groupID, userID string, role models.Role) models.Group {
	f.t.Helper()
	g, err := groupstore.New(f.s).Mutate(ctx, groupID, func(g *models.Group) error {
		g.DropPending(userID)
		g.Admit(userID, role)
		return nil
	})
	if err != nil {
		f.t.Fatalf("add member %s to %s: %v", userID, groupID, err)
	}
	return g
}
