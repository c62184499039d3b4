// internal/domain/models/permission.go
package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/errs"
)

// ModuleAccess lists the roles allowed into one module.
type ModuleAccess struct {
	Module Module `bson:"module" json:"module"`
	Roles  []Role `bson:"roles" json:"roles"`
}

// PermissionMatrix is a group's (module, allowed roles) table. It is
// stored under the owning group's id.
type PermissionMatrix struct {
	GroupID  string         `bson:"_id" json:"group_id"`
	Entries  []ModuleAccess `bson:"entries" json:"entries"`
	Revision int64          `bson:"_rev" json:"revision"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultMatrix is the policy every new group starts with: feature
// modules open to all roles, the admin module restricted to admins.
func DefaultMatrix(groupID string) PermissionMatrix {
	m := PermissionMatrix{GroupID: groupID}
	for _, mod := range Modules {
		roles := slices.Clone(Roles)
		if mod == ModuleAdmin {
			roles = []Role{RoleAdmin}
		}
		m.Entries = append(m.Entries, ModuleAccess{Module: mod, Roles: roles})
	}
	return m
}

// Allows reports whether role may use module. Unknown modules and roles
// are denied.
func (m *PermissionMatrix) Allows(module Module, role Role) bool {
	if !role.Valid() {
		return false
	}
	for _, e := range m.Entries {
		if e.Module == module {
			return slices.Contains(e.Roles, role)
		}
	}
	return false
}

// RolesFor returns a copy of the roles allowed into module.
func (m *PermissionMatrix) RolesFor(module Module) []Role {
	for _, e := range m.Entries {
		if e.Module == module {
			return slices.Clone(e.Roles)
		}
	}
	return nil
}

// SetRoles replaces the allowed-role set of module. The result is not
// validated; call Validate before persisting.
func (m *PermissionMatrix) SetRoles(module Module, roles []Role) {
	roles = normalizeRoles(roles)
	for i := range m.Entries {
		if m.Entries[i].Module == module {
			m.Entries[i].Roles = roles
			return
		}
	}
	m.Entries = append(m.Entries, ModuleAccess{Module: module, Roles: roles})
}

// Validate enforces the matrix invariants: one entry per known module,
// every entry non-empty and made of known roles, and the admin module
// always open to admins.
func (m *PermissionMatrix) Validate() error {
	if m.GroupID == "" {
		return errs.InvalidPolicy("missing group id")
	}
	seen := map[Module]bool{}
	for _, e := range m.Entries {
		if !e.Module.Valid() {
			return errs.InvalidPolicy("unknown module %q", e.Module)
		}
		if seen[e.Module] {
			return errs.InvalidPolicy("module %q listed twice", e.Module)
		}
		seen[e.Module] = true
		if len(e.Roles) == 0 {
			return errs.InvalidPolicy("module %q has no allowed roles", e.Module)
		}
		for _, r := range e.Roles {
			if !r.Valid() {
				return errs.InvalidPolicy("module %q: unknown role %q", e.Module, r)
			}
		}
	}
	for _, mod := range Modules {
		if !seen[mod] {
			return errs.InvalidPolicy("module %q missing", mod)
		}
	}
	if !m.Allows(ModuleAdmin, RoleAdmin) {
		return errs.InvalidPolicy("admin role cannot be removed from the %s module", ModuleAdmin)
	}
	return nil
}

// normalizeRoles dedupes roles and orders them like Roles.
func normalizeRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range Roles {
		if slices.Contains(roles, r) {
			out = append(out, r)
		}
	}
	for _, r := range roles {
		if !r.Valid() && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// String is used in audit details.
func (a ModuleAccess) String() string {
	return fmt.Sprintf("%s=%v", a.Module, a.Roles)
}
