// internal/app/store/groups/groupstore.go
package groupstore

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
)

// Collection is the document collection holding groups.
const Collection = "groups"

// Group statuses. Only active groups resolve by join code.
const (
	StatusActive  = "active"
	StatusDormant = "dormant"
)

type Store struct {
	s         docstore.Store
	conflicts int
}

// ErrDuplicateCode is returned by Create when the join code is taken.
var ErrDuplicateCode = errors.New("join code already in use")

func New(s docstore.Store) *Store {
	return &Store{s: s, conflicts: docstore.DefaultConflictAttempts}
}

// SetConflictAttempts changes how often Mutate retries a lost race.
func (s *Store) SetConflictAttempts(n int) {
	if n > 0 {
		s.conflicts = n
	}
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Group, error) {
	return docstore.GetAs[models.Group](ctx, s.s, Collection, id)
}

// GetByCode finds the active group owning code. code must already be
// normalized.
func (s *Store) GetByCode(ctx context.Context, code string) (models.Group, error) {
	gs, err := docstore.QueryAs[models.Group](ctx, s.s, Collection,
		docstore.Where("code", code), docstore.Where("status", StatusActive))
	if err != nil {
		return models.Group{}, err
	}
	if len(gs) == 0 {
		return models.Group{}, fmt.Errorf("group with code %s: %w", code, errs.ErrNotFound)
	}
	return gs[0], nil
}

// CodeInUse reports whether an active group already holds code.
func (s *Store) CodeInUse(ctx context.Context, code string) (bool, error) {
	_, err := s.GetByCode(ctx, code)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create stores a new group. The caller supplies ID, Name and Code.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.Name = strings.TrimSpace(g.Name)
	g.NameCI = text.Fold(g.Name)
	if g.Status == "" {
		g.Status = StatusActive
	}
	if g.MemberRoles == nil {
		g.MemberRoles = map[string]models.Role{}
	}
	if g.Members == nil {
		g.Members = []string{}
	}
	if g.PendingMembers == nil {
		g.PendingMembers = []string{}
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	if err := g.Validate(); err != nil {
		return models.Group{}, errs.Validation("%s", err.Error())
	}
	if err := s.s.Put(ctx, Collection, g.ID, g); err != nil {
		if errors.Is(err, errs.ErrDuplicate) {
			return models.Group{}, ErrDuplicateCode
		}
		return models.Group{}, err
	}
	return s.GetByID(ctx, g.ID)
}

// Mutate applies fn to the group under optimistic concurrency and stamps
// UpdatedAt. fn may return docstore.ErrSkipWrite for a no-op.
func (s *Store) Mutate(ctx context.Context, id string, fn func(g *models.Group) error) (models.Group, error) {
	return docstore.Mutate[models.Group](ctx, s.s, Collection, id, s.conflicts, func(g *models.Group) error {
		if err := fn(g); err != nil {
			return err
		}
		g.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// MemberRole returns the role userID holds in groupID. ok is false when
// the user is not an approved member.
func (s *Store) MemberRole(ctx context.Context, groupID, userID string) (models.Role, bool, error) {
	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return "", false, err
	}
	r, ok := g.RoleOf(userID)
	return r, ok, nil
}

// ListByMember returns the groups userID belongs to.
func (s *Store) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	return docstore.QueryAs[models.Group](ctx, s.s, Collection, docstore.Where("members", userID))
}
