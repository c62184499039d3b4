// internal/app/store/permissions/permissionstore.go
package permissionstore

import (
	"context"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/models"
)

// Collection holds one permission matrix per group, keyed by group id.
const Collection = "permission_matrices"

type Store struct {
	s docstore.Store
}

func New(s docstore.Store) *Store {
	return &Store{s: s}
}

// Get loads the matrix of groupID.
func (s *Store) Get(ctx context.Context, groupID string) (models.PermissionMatrix, error) {
	return docstore.GetAs[models.PermissionMatrix](ctx, s.s, Collection, groupID)
}

// Put writes m as the matrix of its group, replacing any previous one.
func (s *Store) Put(ctx context.Context, m models.PermissionMatrix) (models.PermissionMatrix, error) {
	m.UpdatedAt = time.Now().UTC()
	if err := m.Validate(); err != nil {
		return models.PermissionMatrix{}, err
	}
	if err := s.s.Put(ctx, Collection, m.GroupID, m); err != nil {
		return models.PermissionMatrix{}, err
	}
	return s.Get(ctx, m.GroupID)
}

// Mutate applies fn under optimistic concurrency. The result must keep
// the matrix invariants; violations come back as errs.ErrValidation
// wrapping the policy error, so callers should Validate inside fn.
func (s *Store) Mutate(ctx context.Context, groupID string, fn func(m *models.PermissionMatrix) error) (models.PermissionMatrix, error) {
	return docstore.Mutate[models.PermissionMatrix](ctx, s.s, Collection, groupID, 0, func(m *models.PermissionMatrix) error {
		if err := fn(m); err != nil {
			return err
		}
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
}
