// internal/domain/models/role.go
package models

import "strings"

// Role is a user's role inside their group.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleMusician Role = "musician"
	RoleMember   Role = "member"
)

// Roles lists every role, most privileged first.
var Roles = []Role{RoleAdmin, RoleManager, RoleMusician, RoleMember}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMusician, RoleMember:
		return true
	}
	return false
}

// ParseRole lowercases and trims s before matching it against the role set.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Module is a feature area gated by the permission matrix.
type Module string

const (
	ModuleCalendar    Module = "calendar"
	ModuleSetlists    Module = "setlists"
	ModuleFinances    Module = "finances"
	ModuleMerchandise Module = "merchandise"
	ModuleTasks       Module = "tasks"
	ModuleChats       Module = "chats"
	ModuleContacts    Module = "contacts"
	ModuleAdmin       Module = "admin"
)

// Modules is the closed set of modules in display order.
var Modules = []Module{
	ModuleCalendar,
	ModuleSetlists,
	ModuleFinances,
	ModuleMerchandise,
	ModuleTasks,
	ModuleChats,
	ModuleContacts,
	ModuleAdmin,
}

// Valid reports whether m is one of the fixed modules.
func (m Module) Valid() bool {
	for _, k := range Modules {
		if k == m {
			return true
		}
	}
	return false
}
