// Package directory manages groups: creation with a unique join code,
// join requests, approval, departures and member roles.
//
// Membership and roles live on the group document, so each operation
// commits in one conditional write. The user document's group reference
// is updated afterwards.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCodeAttempts bounds join code generation.
const DefaultCodeAttempts = 8

// PendingRequest describes an open join request.
type PendingRequest struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	UserID    string `json:"user_id"`
}

// Options tunes a Directory. Zero values use the defaults.
type Options struct {
	CodeAttempts int
	Codes        CodeSource
}

// Directory is the group membership service.
type Directory struct {
	groups       *groupstore.Store
	users        *userstore.Store
	policy       *modulepolicy.Policy
	authn        auth.Authenticator
	audit        *auditlog.Logger
	log          *zap.Logger
	codes        CodeSource
	codeAttempts int
}

func New(groups *groupstore.Store, users *userstore.Store, policy *modulepolicy.Policy, authn auth.Authenticator, audit *auditlog.Logger, logger *zap.Logger, opts Options) *Directory {
	d := &Directory{
		groups:       groups,
		users:        users,
		policy:       policy,
		authn:        authn,
		audit:        audit,
		log:          logger,
		codes:        opts.Codes,
		codeAttempts: opts.CodeAttempts,
	}
	if d.codes == nil {
		d.codes = RandomCodes{}
	}
	if d.codeAttempts <= 0 {
		d.codeAttempts = DefaultCodeAttempts
	}
	return d
}

// CreateGroup creates a group owned by creatorUserID, who becomes its
// first admin, and stores the default permission matrix.
func (d *Directory) CreateGroup(ctx context.Context, name, creatorUserID string) (models.Group, error) {
	if strings.TrimSpace(name) == "" {
		return models.Group{}, errs.Validation("group name is required")
	}
	if creatorUserID == "" {
		return models.Group{}, errs.Validation("creator is required")
	}
	if err := d.requireUnaffiliated(ctx, creatorUserID, ""); err != nil {
		return models.Group{}, err
	}

	var created models.Group
	for attempt := 1; ; attempt++ {
		if attempt > d.codeAttempts {
			return models.Group{}, fmt.Errorf("%w after %d attempts", errs.ErrCodeGenerationExhausted, d.codeAttempts)
		}
		code, err := d.codes.NewCode()
		if err != nil {
			return models.Group{}, fmt.Errorf("generate join code: %w", err)
		}
		inUse, err := d.groups.CodeInUse(ctx, code)
		if err != nil {
			return models.Group{}, err
		}
		if inUse {
			d.log.Debug("join code collision", zap.Int("attempt", attempt))
			continue
		}

		g := models.Group{
			ID:        uuid.NewString(),
			Name:      name,
			Code:      code,
			CreatedBy: creatorUserID,
		}
		g.Admit(creatorUserID, models.RoleAdmin)
		created, err = d.groups.Create(ctx, g)
		if errors.Is(err, groupstore.ErrDuplicateCode) {
			// Lost a race for the code to a concurrent create.
			continue
		}
		if err != nil {
			return models.Group{}, err
		}
		break
	}

	if _, err := d.policy.CreateDefault(ctx, created.ID); err != nil {
		return models.Group{}, err
	}
	d.mirror(ctx, creatorUserID, created.ID, models.RoleAdmin)
	d.audit.GroupCreated(ctx, creatorUserID, created.ID, created.Name)
	d.log.Info("group created", zap.String("group_id", created.ID), zap.String("created_by", creatorUserID))
	return created, nil
}

// JoinGroup files a join request for userID against the group owning
// code. Repeating a pending request is a no-op.
func (d *Directory) JoinGroup(ctx context.Context, code, userID string) (PendingRequest, error) {
	code = NormalizeCode(code)
	if !models.ValidJoinCode(code) {
		return PendingRequest{}, errs.Validation("join code must be %d letters or digits", models.JoinCodeLength)
	}
	if userID == "" {
		return PendingRequest{}, errs.Validation("user is required")
	}
	g, err := d.groups.GetByCode(ctx, code)
	if err != nil {
		return PendingRequest{}, err
	}
	if err := d.requireUnaffiliated(ctx, userID, g.ID); err != nil {
		return PendingRequest{}, err
	}

	added := false
	g, err = d.groups.Mutate(ctx, g.ID, func(g *models.Group) error {
		added = false
		switch {
		case g.IsMember(userID):
			return errs.Validation("already a member of %s", g.Name)
		case g.IsPending(userID):
			return docstore.ErrSkipWrite
		}
		g.AddPending(userID)
		added = true
		return nil
	})
	if err != nil {
		return PendingRequest{}, err
	}
	if added {
		d.audit.JoinRequested(ctx, g.ID, userID)
	}
	return PendingRequest{GroupID: g.ID, GroupName: g.Name, UserID: userID}, nil
}

// CancelJoin withdraws the caller's own pending request.
func (d *Directory) CancelJoin(ctx context.Context, groupID string) error {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return err
	}
	_, err = d.groups.Mutate(ctx, groupID, func(g *models.Group) error {
		if !g.IsPending(caller.UserID) {
			return fmt.Errorf("join request of %s: %w", caller.UserID, errs.ErrNotFound)
		}
		g.DropPending(caller.UserID)
		return nil
	})
	if err != nil {
		return err
	}
	d.audit.JoinCancelled(ctx, groupID, caller.UserID)
	return nil
}

// ApproveMember admits a pending user with the member role.
func (d *Directory) ApproveMember(ctx context.Context, groupID, userID string) (models.Group, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return models.Group{}, err
	}
	if err := d.requireUnaffiliated(ctx, userID, groupID); err != nil {
		return models.Group{}, err
	}
	g, err := d.groups.Mutate(ctx, groupID, func(g *models.Group) error {
		if err := d.requireAdmin(ctx, g, caller.UserID); err != nil {
			return err
		}
		if !g.IsPending(userID) {
			return fmt.Errorf("pending member %s: %w", userID, errs.ErrNotFound)
		}
		g.Admit(userID, models.RoleMember)
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	d.mirror(ctx, userID, groupID, models.RoleMember)
	d.audit.MemberApproved(ctx, caller.UserID, groupID, userID)
	return g, nil
}

// RejectMember drops a pending request.
func (d *Directory) RejectMember(ctx context.Context, groupID, userID string) (models.Group, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return models.Group{}, err
	}
	g, err := d.groups.Mutate(ctx, groupID, func(g *models.Group) error {
		if err := d.requireAdmin(ctx, g, caller.UserID); err != nil {
			return err
		}
		if !g.IsPending(userID) {
			return fmt.Errorf("pending member %s: %w", userID, errs.ErrNotFound)
		}
		g.DropPending(userID)
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	d.audit.MemberRejected(ctx, caller.UserID, groupID, userID)
	return g, nil
}

// LeaveGroup removes userID from the group. The last admin must name a
// successor unless they are the only member left. Only a departing admin
// may name a successor, who is promoted to admin in the same write.
// Callers other than userID need admin access. A group left without
// members goes dormant: its code stops resolving and pending requests
// are dropped.
func (d *Directory) LeaveGroup(ctx context.Context, groupID, userID, successorID string) (models.Group, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return models.Group{}, err
	}
	if successorID != "" && successorID == userID {
		return models.Group{}, errs.Validation("successor must be another member")
	}

	g, err := d.groups.Mutate(ctx, groupID, func(g *models.Group) error {
		if caller.UserID != userID {
			if err := d.requireAdmin(ctx, g, caller.UserID); err != nil {
				return err
			}
		}
		role, ok := g.RoleOf(userID)
		if !ok {
			return fmt.Errorf("member %s: %w", userID, errs.ErrNotFound)
		}
		if successorID != "" {
			if role != models.RoleAdmin {
				return errs.Validation("only an admin may name a successor")
			}
			if !g.IsMember(successorID) {
				return errs.Validation("successor %s is not a member", successorID)
			}
			g.MemberRoles[successorID] = models.RoleAdmin
		}
		lastAdmin := role == models.RoleAdmin && len(g.Admins()) == 1
		if lastAdmin && len(g.Members) > 1 {
			return fmt.Errorf("%w: name a successor before leaving", errs.ErrLastAdmin)
		}
		g.DropMember(userID)
		if len(g.Members) == 0 {
			g.Status = groupstore.StatusDormant
			g.PendingMembers = []string{}
		}
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	d.clearMirror(ctx, userID, groupID)
	if successorID != "" {
		d.mirror(ctx, successorID, groupID, models.RoleAdmin)
	}
	d.audit.MemberLeft(ctx, groupID, userID, successorID)
	return g, nil
}

// SetMemberRole changes a member's role. Demoting the last admin is
// refused.
func (d *Directory) SetMemberRole(ctx context.Context, groupID, userID string, role models.Role) (models.Group, error) {
	if !role.Valid() {
		return models.Group{}, errs.Validation("unknown role %q", role)
	}
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return models.Group{}, err
	}
	var from models.Role
	g, err := d.groups.Mutate(ctx, groupID, func(g *models.Group) error {
		if err := d.requireAdmin(ctx, g, caller.UserID); err != nil {
			return err
		}
		cur, ok := g.RoleOf(userID)
		if !ok {
			return fmt.Errorf("member %s: %w", userID, errs.ErrNotFound)
		}
		from = cur
		if cur == role {
			return docstore.ErrSkipWrite
		}
		if cur == models.RoleAdmin && len(g.Admins()) == 1 {
			return fmt.Errorf("%w: promote another admin first", errs.ErrLastAdmin)
		}
		g.MemberRoles[userID] = role
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	if from != role {
		d.mirror(ctx, userID, groupID, role)
		d.audit.RoleChanged(ctx, caller.UserID, groupID, userID, from, role)
	}
	return g, nil
}

// GetGroup returns a group to one of its members.
func (d *Directory) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return models.Group{}, err
	}
	g, err := d.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !g.IsMember(caller.UserID) {
		return models.Group{}, fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, groupID)
	}
	return g, nil
}

// ListPending returns the user ids waiting for approval.
func (d *Directory) ListPending(ctx context.Context, groupID string) ([]string, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := d.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := d.requireAdmin(ctx, &g, caller.UserID); err != nil {
		return nil, err
	}
	return append([]string(nil), g.PendingMembers...), nil
}

// MyGroups lists the groups the caller belongs to.
func (d *Directory) MyGroups(ctx context.Context) ([]models.Group, error) {
	caller, err := d.authn.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return d.groups.ListByMember(ctx, caller.UserID)
}

// requireUnaffiliated refuses users who already belong to a group other
// than except. The group documents are authoritative, so membership is
// read from them rather than from the user's mirrored reference.
func (d *Directory) requireUnaffiliated(ctx context.Context, userID, except string) error {
	gs, err := d.groups.ListByMember(ctx, userID)
	if err != nil {
		return err
	}
	for _, g := range gs {
		if g.ID != except {
			return errs.Validation("already a member of %s; leave it first", g.Name)
		}
	}
	return nil
}

// requireAdmin checks callerID's role in g against the admin module.
func (d *Directory) requireAdmin(ctx context.Context, g *models.Group, callerID string) error {
	role, ok := g.RoleOf(callerID)
	if !ok {
		return fmt.Errorf("%w: not a member of group %s", errs.ErrPermissionDenied, g.ID)
	}
	if !d.policy.HasAccess(ctx, g.ID, models.ModuleAdmin, role) {
		return fmt.Errorf("%w: role %s may not administer group %s", errs.ErrPermissionDenied, role, g.ID)
	}
	return nil
}

// mirror copies committed membership onto the user record. The group
// document stays authoritative, so failures are logged only.
func (d *Directory) mirror(ctx context.Context, userID, groupID string, role models.Role) {
	if _, err := d.users.SetMembership(ctx, userID, groupID, role); err != nil {
		d.log.Warn("user membership mirror failed",
			zap.String("user_id", userID), zap.String("group_id", groupID), zap.Error(err))
	}
}

func (d *Directory) clearMirror(ctx context.Context, userID, groupID string) {
	if _, err := d.users.ClearMembership(ctx, userID, groupID); err != nil {
		d.log.Warn("user membership clear failed", zap.String("user_id", userID), zap.Error(err))
	}
}
