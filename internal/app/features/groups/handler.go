// internal/app/features/groups/handler.go
package groups

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/bandhub/internal/app/directory"
	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/audit"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves group membership and permission endpoints. All routes
// require a signed-in caller.
type Handler struct {
	Directory *directory.Directory
	Policy    *modulepolicy.Policy
	Audit     *audit.Store // optional; serves the group audit trail
	Log       *zap.Logger
}

func NewHandler(dir *directory.Directory, policy *modulepolicy.Policy, auditStore *audit.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Directory: dir,
		Policy:    policy,
		Audit:     auditStore,
		Log:       logger,
	}
}

type createRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	Code string `json:"code"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

type leaveRequest struct {
	UserID      string `json:"user_id,omitempty"` // defaults to the caller
	SuccessorID string `json:"successor_id,omitempty"`
}

type roleRequest struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
}

type rolesRequest struct {
	Roles []models.Role `json:"roles"`
}

type pendingResponse struct {
	GroupID string   `json:"group_id"`
	UserIDs []string `json:"user_ids"`
}

func (h *Handler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(auditlog.WithRequest(r.Context(), r), timeouts.Medium())
}

func groupID(r *http.Request) string { return chi.URLParam(r, "groupID") }

func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// HandleCreate handles POST /groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	g, err := h.Directory.CreateGroup(ctx, req.Name, caller(r).UserID)
	if err != nil {
		respond.Error(w, h.Log, "create group", err)
		return
	}
	respond.JSON(w, http.StatusCreated, g)
}

// ServeMine handles GET /groups.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	gs, err := h.Directory.MyGroups(ctx)
	if err != nil {
		respond.Error(w, h.Log, "list groups", err)
		return
	}
	if gs == nil {
		gs = []models.Group{}
	}
	respond.JSON(w, http.StatusOK, gs)
}

// HandleJoin handles POST /groups/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	pr, err := h.Directory.JoinGroup(ctx, req.Code, caller(r).UserID)
	if err != nil {
		respond.Error(w, h.Log, "join group", err)
		return
	}
	respond.JSON(w, http.StatusAccepted, pr)
}

// ServeGroup handles GET /groups/{groupID}.
func (h *Handler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	g, err := h.Directory.GetGroup(ctx, groupID(r))
	if err != nil {
		respond.Error(w, h.Log, "get group", err)
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// ServePending handles GET /groups/{groupID}/pending.
func (h *Handler) ServePending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	ids, err := h.Directory.ListPending(ctx, groupID(r))
	if err != nil {
		respond.Error(w, h.Log, "list pending", err)
		return
	}
	respond.JSON(w, http.StatusOK, pendingResponse{GroupID: groupID(r), UserIDs: ids})
}

// HandleCancelJoin handles DELETE /groups/{groupID}/pending: the caller
// withdraws their own request.
func (h *Handler) HandleCancelJoin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Directory.CancelJoin(ctx, groupID(r)); err != nil {
		respond.Error(w, h.Log, "cancel join", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleApprove handles POST /groups/{groupID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve member", h.Directory.ApproveMember)
}

// HandleReject handles POST /groups/{groupID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject member", h.Directory.RejectMember)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string, string) (models.Group, error)) {
	var req memberRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	g, err := fn(ctx, groupID(r), req.UserID)
	if err != nil {
		respond.Error(w, h.Log, op, err)
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// HandleLeave handles POST /groups/{groupID}/leave.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = caller(r).UserID
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	g, err := h.Directory.LeaveGroup(ctx, groupID(r), req.UserID, req.SuccessorID)
	if err != nil {
		respond.Error(w, h.Log, "leave group", err)
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// HandleSetRole handles PUT /groups/{groupID}/roles.
func (h *Handler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	g, err := h.Directory.SetMemberRole(ctx, groupID(r), req.UserID, req.Role)
	if err != nil {
		respond.Error(w, h.Log, "set role", err)
		return
	}
	respond.JSON(w, http.StatusOK, g)
}

// ServePermissions handles GET /groups/{groupID}/permissions.
func (h *Handler) ServePermissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	m, err := h.Policy.Get(ctx, groupID(r))
	if err != nil {
		respond.Error(w, h.Log, "get permissions", err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

type policyChange func(ctx context.Context, groupID string, module models.Module, roles []models.Role) (models.PermissionMatrix, error)

// HandleGrant handles POST /groups/{groupID}/permissions/{module}.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	h.changePolicy(w, r, "grant roles", h.Policy.GrantRoles)
}

// HandleRevoke handles DELETE /groups/{groupID}/permissions/{module}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	h.changePolicy(w, r, "revoke roles", h.Policy.RevokeRoles)
}

// HandleSetRoles handles PUT /groups/{groupID}/permissions/{module}.
func (h *Handler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	h.changePolicy(w, r, "set roles", h.Policy.SetRoles)
}

func (h *Handler) changePolicy(w http.ResponseWriter, r *http.Request, op string, fn policyChange) {
	var req rolesRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	m, err := fn(ctx, groupID(r), models.Module(chi.URLParam(r, "module")), req.Roles)
	if err != nil {
		respond.Error(w, h.Log, op, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

// ServeAudit handles GET /groups/{groupID}/audit?limit=N. Admins only.
func (h *Handler) ServeAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		respond.Fail(w, http.StatusNotFound, respond.CodeNotFound, "audit trail is not stored")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if _, _, err := h.Policy.Authorize(ctx, groupID(r), models.ModuleAdmin); err != nil {
		respond.Error(w, h.Log, "audit trail", err)
		return
	}
	limit := 100
	if s := query.Get(r, "limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respond.Fail(w, http.StatusBadRequest, respond.CodeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := h.Audit.ByGroup(ctx, groupID(r), limit)
	if err != nil {
		respond.Error(w, h.Log, "audit trail", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respond.JSON(w, http.StatusOK, events)
}
