// internal/domain/models/group.go
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// JoinCodeLength is the fixed length of a group join code.
const JoinCodeLength = 6

// JoinCodeAlphabet is the symbol set join codes are drawn from.
const JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Group is a band. Membership lives on the group document so that a
// request, approval or departure is a single conditional write.
//
// NOTE:
//   - A user id is in at most one of Members / PendingMembers.
//   - MemberRoles has exactly one entry per member and none for pending
//     users.
type Group struct {
	ID             string          `bson:"_id" json:"id"`
	Name           string          `bson:"name" json:"name"`
	NameCI         string          `bson:"name_ci" json:"-"`
	Code           string          `bson:"code" json:"code"`
	Status         string          `bson:"status" json:"status"`
	Members        []string        `bson:"members" json:"members"`
	PendingMembers []string        `bson:"pending_members" json:"pending_members"`
	MemberRoles    map[string]Role `bson:"member_roles" json:"member_roles"`
	CreatedBy      string          `bson:"created_by" json:"created_by"`
	Revision       int64           `bson:"_rev" json:"revision"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsMember reports whether userID is an approved member.
func (g *Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// IsPending reports whether userID has an open join request.
func (g *Group) IsPending(userID string) bool {
	return slices.Contains(g.PendingMembers, userID)
}

// RoleOf returns the role of a member. ok is false for non-members.
func (g *Group) RoleOf(userID string) (Role, bool) {
	if !g.IsMember(userID) {
		return "", false
	}
	r, ok := g.MemberRoles[userID]
	return r, ok
}

// Admins returns the ids of members holding the admin role.
func (g *Group) Admins() []string {
	var out []string
	for _, id := range g.Members {
		if g.MemberRoles[id] == RoleAdmin {
			out = append(out, id)
		}
	}
	return out
}

// AddPending records a join request.
func (g *Group) AddPending(userID string) {
	g.PendingMembers = append(g.PendingMembers, userID)
}

// Admit moves userID from pending to members with the given role.
func (g *Group) Admit(userID string, role Role) {
	g.PendingMembers = remove(g.PendingMembers, userID)
	g.Members = append(g.Members, userID)
	if g.MemberRoles == nil {
		g.MemberRoles = map[string]Role{}
	}
	g.MemberRoles[userID] = role
}

// DropPending removes a join request.
func (g *Group) DropPending(userID string) {
	g.PendingMembers = remove(g.PendingMembers, userID)
}

// DropMember removes a member and their role.
func (g *Group) DropMember(userID string) {
	g.Members = remove(g.Members, userID)
	delete(g.MemberRoles, userID)
}

// Validate checks the invariants a stored group must satisfy.
func (g *Group) Validate() error {
	if g.ID == "" {
		return errors.New("missing id")
	}
	if !ValidJoinCode(g.Code) {
		return fmt.Errorf("malformed join code %q", g.Code)
	}
	seen := make(map[string]bool, len(g.Members))
	for _, id := range g.Members {
		if seen[id] {
			return fmt.Errorf("member %s listed twice", id)
		}
		seen[id] = true
		if !g.MemberRoles[id].Valid() {
			return fmt.Errorf("member %s has no valid role", id)
		}
	}
	for _, id := range g.PendingMembers {
		if seen[id] {
			return fmt.Errorf("user %s is both member and pending", id)
		}
		seen[id] = true
	}
	for id := range g.MemberRoles {
		if !slices.Contains(g.Members, id) {
			return fmt.Errorf("role recorded for non-member %s", id)
		}
	}
	return nil
}

// ValidJoinCode reports whether code is exactly JoinCodeLength symbols
// from JoinCodeAlphabet.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(s string) bool { return s == id })
}
