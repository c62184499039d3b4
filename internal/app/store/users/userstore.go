// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
)

// Collection is the document collection holding users.
const Collection = "users"

type Store struct {
	s docstore.Store
}

// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
var ErrDuplicateEmail = errors.New("a user with this email already exists")

func New(s docstore.Store) *Store {
	return &Store{s: s}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user after normalizing fields. A new user has no
// group and the member role.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Phone = strings.TrimSpace(u.Phone)
	u.GroupID = ""
	u.Role = models.RoleMember
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := u.Validate(); err != nil {
		return models.User{}, errs.Validation("%s", err.Error())
	}

	// Query first so the in-memory store and servers without the unique
	// index still refuse duplicates.
	if _, err := s.GetByEmail(ctx, u.Email); err == nil {
		return models.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, errs.ErrNotFound) {
		return models.User{}, err
	}
	if err := s.s.Put(ctx, Collection, u.ID, u); err != nil {
		if errors.Is(err, errs.ErrDuplicate) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user.
func (s *Store) GetByID(ctx context.Context, id string) (models.User, error) {
	return docstore.GetAs[models.User](ctx, s.s, Collection, id)
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	email = NormalizeEmail(email)
	us, err := docstore.QueryAs[models.User](ctx, s.s, Collection, docstore.Where("email", email))
	if err != nil {
		return models.User{}, err
	}
	if len(us) == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", email, errs.ErrNotFound)
	}
	return us[0], nil
}

// SetMembership mirrors a committed group membership onto the user.
func (s *Store) SetMembership(ctx context.Context, id, groupID string, role models.Role) (models.User, error) {
	return docstore.Mutate[models.User](ctx, s.s, Collection, id, 0, func(u *models.User) error {
		if u.GroupID == groupID && u.Role == role {
			return docstore.ErrSkipWrite
		}
		u.GroupID = groupID
		u.Role = role
		u.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// ClearMembership removes the user's reference to groupID. A reference
// to another group is left alone.
func (s *Store) ClearMembership(ctx context.Context, id, groupID string) (models.User, error) {
	return docstore.Mutate[models.User](ctx, s.s, Collection, id, 0, func(u *models.User) error {
		if u.GroupID != groupID || groupID == "" {
			return docstore.ErrSkipWrite
		}
		u.GroupID = ""
		u.Role = models.RoleMember
		u.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// UpdateProfile changes name and phone.
func (s *Store) UpdateProfile(ctx context.Context, id, name, phone string) (models.User, error) {
	return docstore.Mutate[models.User](ctx, s.s, Collection, id, 0, func(u *models.User) error {
		if n := strings.TrimSpace(name); n != "" {
			u.Name = n
			u.NameCI = text.Fold(n)
		}
		u.Phone = strings.TrimSpace(phone)
		u.UpdatedAt = time.Now().UTC()
		return nil
	})
}
