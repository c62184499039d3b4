// Package records holds the group-scoped collections (events, finances,
// merchandise, tasks, chats). Every operation first asks the permission
// matrix whether the caller's group role may use the collection's module.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/google/uuid"
)

// Gate authorizes the caller for a module of a group.
// modulepolicy.Policy implements it.
type Gate interface {
	Authorize(ctx context.Context, groupID string, module models.Module) (auth.Identity, models.Role, error)
}

// Record constrains the pointer type of a stored record.
type Record[T any] interface {
	*T
	docstore.Validator
	Meta() *models.RecordMeta
}

// Collection is a typed, gated collection of group records.
type Collection[T any, P Record[T]] struct {
	s      docstore.Store
	name   string
	module models.Module
	gate   Gate
	now    func() time.Time
}

// NewCollection builds a collection stored under name and gated on module.
func NewCollection[T any, P Record[T]](s docstore.Store, name string, module models.Module, gate Gate) *Collection[T, P] {
	return &Collection[T, P]{s: s, name: name, module: module, gate: gate, now: time.Now}
}

// Name is the underlying document collection.
func (c *Collection[T, P]) Name() string { return c.name }

// Module is the module the collection is gated on.
func (c *Collection[T, P]) Module() models.Module { return c.module }

func (c *Collection[T, P]) authorize(ctx context.Context, groupID string) (auth.Identity, error) {
	id, _, err := c.gate.Authorize(ctx, groupID, c.module)
	return id, err
}

// Create stores rec in groupID. Id, group and timestamps are assigned here.
func (c *Collection[T, P]) Create(ctx context.Context, groupID string, rec T) (T, error) {
	caller, err := c.authorize(ctx, groupID)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.create(ctx, groupID, caller.UserID, rec)
}

func (c *Collection[T, P]) create(ctx context.Context, groupID, createdBy string, rec T) (T, error) {
	var zero T
	m := P(&rec).Meta()
	now := c.now().UTC()
	m.ID = uuid.NewString()
	m.GroupID = groupID
	m.CreatedBy = createdBy
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := P(&rec).Validate(); err != nil {
		return zero, errs.Validation("%s", err.Error())
	}
	if err := c.s.Put(ctx, c.name, m.ID, P(&rec)); err != nil {
		return zero, err
	}
	return c.get(ctx, groupID, m.ID)
}

// Get returns one record of groupID.
func (c *Collection[T, P]) Get(ctx context.Context, groupID, id string) (T, error) {
	if _, err := c.authorize(ctx, groupID); err != nil {
		var zero T
		return zero, err
	}
	return c.get(ctx, groupID, id)
}

func (c *Collection[T, P]) get(ctx context.Context, groupID, id string) (T, error) {
	v, err := docstore.GetAs[T, P](ctx, c.s, c.name, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if P(&v).Meta().GroupID != groupID {
		// Records of other groups are invisible, not forbidden.
		var zero T
		return zero, fmt.Errorf("%s/%s: %w", c.name, id, errs.ErrNotFound)
	}
	return v, nil
}

// List returns every record of groupID ordered by id.
func (c *Collection[T, P]) List(ctx context.Context, groupID string) ([]T, error) {
	if _, err := c.authorize(ctx, groupID); err != nil {
		return nil, err
	}
	return c.list(ctx, groupID)
}

func (c *Collection[T, P]) list(ctx context.Context, groupID string) ([]T, error) {
	return docstore.QueryAs[T, P](ctx, c.s, c.name, docstore.Where("group_id", groupID))
}

// Update applies fn to a record under optimistic concurrency. Id, group,
// creator and creation time cannot be changed by fn.
func (c *Collection[T, P]) Update(ctx context.Context, groupID, id string, fn func(P) error) (T, error) {
	if _, err := c.authorize(ctx, groupID); err != nil {
		var zero T
		return zero, err
	}
	return c.update(ctx, groupID, id, fn)
}

func (c *Collection[T, P]) update(ctx context.Context, groupID, id string, fn func(P) error) (T, error) {
	return docstore.Mutate[T, P](ctx, c.s, c.name, id, 0, func(p P) error {
		m := p.Meta()
		if m.GroupID != groupID {
			return fmt.Errorf("%s/%s: %w", c.name, id, errs.ErrNotFound)
		}
		keep := *m
		if err := fn(p); err != nil {
			return err
		}
		m = p.Meta()
		m.ID, m.GroupID, m.CreatedBy, m.CreatedAt = keep.ID, keep.GroupID, keep.CreatedBy, keep.CreatedAt
		m.Revision = keep.Revision
		m.UpdatedAt = c.now().UTC()
		return nil
	})
}

// Delete removes a record of groupID.
func (c *Collection[T, P]) Delete(ctx context.Context, groupID, id string) error {
	if _, err := c.authorize(ctx, groupID); err != nil {
		return err
	}
	if _, err := c.get(ctx, groupID, id); err != nil {
		return err
	}
	return c.s.Delete(ctx, c.name, id)
}
