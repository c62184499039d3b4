// Package modulepolicy answers whether a role may use a module of a group
// and lets group admins change that answer.
//
// Lookups are fail-closed: a missing matrix, an unknown module or role,
// or a store failure all deny access.
package modulepolicy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

// MemberResolver looks up a user's role inside a group.
type MemberResolver interface {
	MemberRole(ctx context.Context, groupID, userID string) (models.Role, bool, error)
}

// Policy is the permission matrix service.
type Policy struct {
	store   *permissionstore.Store
	members MemberResolver
	authn   auth.Authenticator
	cache   Cache
	audit   *auditlog.Logger
	log     *zap.Logger
}

// New builds a Policy without a cache.
func New(store *permissionstore.Store, members MemberResolver, authn auth.Authenticator, audit *auditlog.Logger, logger *zap.Logger) *Policy {
	return &Policy{
		store:   store,
		members: members,
		authn:   authn,
		cache:   NoCache{},
		audit:   audit,
		log:     logger,
	}
}

// WithCache installs a read-through cache.
func (p *Policy) WithCache(c Cache) *Policy {
	if c != nil {
		p.cache = c
	}
	return p
}

// CreateDefault stores the default matrix for a new group.
func (p *Policy) CreateDefault(ctx context.Context, groupID string) (models.PermissionMatrix, error) {
	m, err := p.store.Put(ctx, models.DefaultMatrix(groupID))
	if err != nil {
		return models.PermissionMatrix{}, fmt.Errorf("create default permissions: %w", err)
	}
	p.invalidate(ctx, groupID)
	return m, nil
}

// matrix loads through the cache.
func (p *Policy) matrix(ctx context.Context, groupID string) (models.PermissionMatrix, error) {
	if m, ok, err := p.cache.Get(ctx, groupID); err == nil && ok {
		return m, nil
	} else if err != nil {
		p.log.Warn("permission cache read failed", zap.String("group_id", groupID), zap.Error(err))
	}
	m, err := p.store.Get(ctx, groupID)
	if err != nil {
		return models.PermissionMatrix{}, err
	}
	if err := p.cache.Set(ctx, m); err != nil {
		p.log.Warn("permission cache write failed", zap.String("group_id", groupID), zap.Error(err))
	}
	return m, nil
}

func (p *Policy) invalidate(ctx context.Context, groupID string) {
	if err := p.cache.Invalidate(ctx, groupID); err != nil {
		p.log.Warn("permission cache invalidate failed", zap.String("group_id", groupID), zap.Error(err))
	}
}

// HasAccess reports whether role may use module in groupID.
func (p *Policy) HasAccess(ctx context.Context, groupID string, module models.Module, role models.Role) bool {
	if !module.Valid() || !role.Valid() {
		return false
	}
	m, err := p.matrix(ctx, groupID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			p.log.Warn("permission lookup failed; denying",
				zap.String("group_id", groupID),
				zap.String("module", string(module)),
				zap.Error(err))
		}
		return false
	}
	return m.Allows(module, role)
}

// Authorize resolves the caller and checks they may use module in
// groupID. It returns the caller and their group role.
func (p *Policy) Authorize(ctx context.Context, groupID string, module models.Module) (auth.Identity, models.Role, error) {
	id, err := p.authn.CurrentUser(ctx)
	if err != nil {
		return auth.Identity{}, "", err
	}
	role, ok, err := p.members.MemberRole(ctx, groupID, id.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return id, "", fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, groupID)
		}
		return id, "", err
	}
	if !ok {
		return id, "", fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, groupID)
	}
	if !p.HasAccess(ctx, groupID, module, role) {
		return id, role, fmt.Errorf("%w: role %s may not use %s", errs.ErrPermissionDenied, role, module)
	}
	return id, role, nil
}

// Get returns the matrix of groupID to any member of the group.
func (p *Policy) Get(ctx context.Context, groupID string) (models.PermissionMatrix, error) {
	id, err := p.authn.CurrentUser(ctx)
	if err != nil {
		return models.PermissionMatrix{}, err
	}
	if _, ok, err := p.members.MemberRole(ctx, groupID, id.UserID); err != nil {
		return models.PermissionMatrix{}, err
	} else if !ok {
		return models.PermissionMatrix{}, fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, groupID)
	}
	return p.matrix(ctx, groupID)
}

// GrantRoles adds roles to the allowed set of module.
func (p *Policy) GrantRoles(ctx context.Context, groupID string, module models.Module, roles []models.Role) (models.PermissionMatrix, error) {
	return p.change(ctx, groupID, module, roles, func(cur []models.Role) []models.Role {
		return append(cur, roles...)
	})
}

// RevokeRoles removes roles from the allowed set of module.
func (p *Policy) RevokeRoles(ctx context.Context, groupID string, module models.Module, roles []models.Role) (models.PermissionMatrix, error) {
	return p.change(ctx, groupID, module, roles, func(cur []models.Role) []models.Role {
		return slices.DeleteFunc(cur, func(r models.Role) bool { return slices.Contains(roles, r) })
	})
}

// SetRoles replaces the allowed set of module.
func (p *Policy) SetRoles(ctx context.Context, groupID string, module models.Module, roles []models.Role) (models.PermissionMatrix, error) {
	return p.change(ctx, groupID, module, roles, func([]models.Role) []models.Role {
		return slices.Clone(roles)
	})
}

func (p *Policy) change(ctx context.Context, groupID string, module models.Module, roles []models.Role, apply func([]models.Role) []models.Role) (models.PermissionMatrix, error) {
	if !module.Valid() {
		return models.PermissionMatrix{}, errs.InvalidPolicy("unknown module %q", module)
	}
	for _, r := range roles {
		if !r.Valid() {
			return models.PermissionMatrix{}, errs.InvalidPolicy("unknown role %q", r)
		}
	}
	actor, err := p.requireAdmin(ctx, groupID)
	if err != nil {
		return models.PermissionMatrix{}, err
	}

	m, err := p.store.Mutate(ctx, groupID, func(m *models.PermissionMatrix) error {
		m.SetRoles(module, apply(m.RolesFor(module)))
		return m.Validate()
	})
	if err != nil {
		return models.PermissionMatrix{}, err
	}
	p.invalidate(ctx, groupID)
	p.audit.PermissionsChanged(ctx, actor.UserID, groupID, module, m.RolesFor(module))
	return m, nil
}

// requireAdmin checks the caller may use the admin module, reading the
// matrix from the store rather than the cache.
func (p *Policy) requireAdmin(ctx context.Context, groupID string) (auth.Identity, error) {
	id, err := p.authn.CurrentUser(ctx)
	if err != nil {
		return auth.Identity{}, err
	}
	role, ok, err := p.members.MemberRole(ctx, groupID, id.UserID)
	if err != nil {
		return id, err
	}
	if !ok {
		return id, fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, groupID)
	}
	m, err := p.store.Get(ctx, groupID)
	if err != nil {
		return id, err
	}
	if !m.Allows(models.ModuleAdmin, role) {
		return id, fmt.Errorf("%w: role %s may not administer group %s", errs.ErrPermissionDenied, role, groupID)
	}
	return id, nil
}
