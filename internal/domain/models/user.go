// internal/domain/models/user.go
package models

import (
	"errors"
	"time"
)

// User is a registered account.
//
// NOTE:
//   - GroupID and Role mirror the user's entry in the group document,
//     which is authoritative. They are rewritten after each membership
//     change commits.
//   - GroupID is empty until the user creates a group or is approved.
type User struct {
	ID           string `bson:"_id" json:"id"`
	Email        string `bson:"email" json:"email"` // lowercase
	Name         string `bson:"name" json:"name"`
	NameCI       string `bson:"name_ci" json:"-"`
	Phone        string `bson:"phone,omitempty" json:"phone,omitempty"`
	GroupID      string `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Role         Role   `bson:"role" json:"role"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Validate checks the invariants a stored user must satisfy.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("missing id")
	}
	if u.Email == "" {
		return errors.New("missing email")
	}
	if !u.Role.Valid() {
		return errors.New("unknown role " + string(u.Role))
	}
	return nil
}
