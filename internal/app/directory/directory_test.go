package directory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/directory"
	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

// seqCodes hands out codes in order and repeats the last one.
type seqCodes struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (s *seqCodes) NewCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.codes)-1)
	s.calls++
	return s.codes[i], nil
}

type env struct {
	dir    *directory.Directory
	policy *modulepolicy.Policy
	groups *groupstore.Store
	users  *userstore.Store
	mem    *docstore.Memory
}

func newEnv(t *testing.T, codes directory.CodeSource) *env {
	t.Helper()
	mem := docstore.NewMemory()
	mem.Unique(groupstore.Collection, "code")
	groups := groupstore.New(mem)
	users := userstore.New(mem)
	policy := modulepolicy.New(permissionstore.New(mem), groups, auth.ContextAuthenticator{}, nil, zap.NewNop())
	dir := directory.New(groups, users, policy, auth.ContextAuthenticator{}, nil, zap.NewNop(), directory.Options{Codes: codes})
	return &env{dir: dir, policy: policy, groups: groups, users: users, mem: mem}
}

func (e *env) user(t *testing.T, name string) string {
	t.Helper()
	u, err := e.users.Create(context.Background(), models.User{Email: name + "@example.com", Name: name})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

func as(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID})
}

func TestScenario_CreateJoinApprove(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	g, err := e.dir.CreateGroup(as(a), "The Reds", a)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if g.Code != "AB12CD" {
		t.Errorf("code = %q", g.Code)
	}
	if role, _ := g.RoleOf(a); role != models.RoleAdmin {
		t.Errorf("creator role = %q, want admin", role)
	}

	req, err := e.dir.JoinGroup(as(b), "ab12cd", b)
	if err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	if req.GroupID != g.ID {
		t.Errorf("request group = %q, want %q", req.GroupID, g.ID)
	}

	g, err = e.dir.ApproveMember(as(a), g.ID, b)
	if err != nil {
		t.Fatalf("ApproveMember failed: %v", err)
	}
	if !g.IsMember(b) || g.IsPending(b) {
		t.Errorf("bob should be a member only: members=%v pending=%v", g.Members, g.PendingMembers)
	}

	ctx := context.Background()
	if !e.policy.HasAccess(ctx, g.ID, models.ModuleCalendar, models.RoleMember) {
		t.Error("member should reach calendar")
	}
	if e.policy.HasAccess(ctx, g.ID, models.ModuleAdmin, models.RoleMember) {
		t.Error("member must not reach admin")
	}

	u, _ := e.users.GetByID(ctx, b)
	if u.GroupID != g.ID || u.Role != models.RoleMember {
		t.Errorf("user mirror = %q/%q", u.GroupID, u.Role)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	e := newEnv(t, nil)
	a := e.user(t, "alice")
	for _, name := range []string{"", "   "} {
		if _, err := e.dir.CreateGroup(as(a), name, a); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("name %q: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestCreateGroup_CodeCollisionRetries(t *testing.T) {
	codes := &seqCodes{codes: []string{"AAAAAA", "AAAAAA", "BBBBBB"}}
	e := newEnv(t, codes)
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	first, err := e.dir.CreateGroup(as(a), "One", a)
	if err != nil {
		t.Fatalf("first CreateGroup failed: %v", err)
	}
	second, err := e.dir.CreateGroup(as(b), "Two", b)
	if err != nil {
		t.Fatalf("second CreateGroup failed: %v", err)
	}
	if first.Code != "AAAAAA" || second.Code != "BBBBBB" {
		t.Errorf("codes = %s, %s", first.Code, second.Code)
	}
	if codes.calls != 3 {
		t.Errorf("expected 3 code draws, got %d", codes.calls)
	}
}

func TestCreateGroup_CodeGenerationExhausted(t *testing.T) {
	codes := &seqCodes{codes: []string{"ZZZZZZ"}}
	e := newEnv(t, codes)
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	if _, err := e.dir.CreateGroup(as(a), "One", a); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	codes.calls = 0
	_, err := e.dir.CreateGroup(as(b), "Two", b)
	if !errors.Is(err, errs.ErrCodeGenerationExhausted) {
		t.Fatalf("expected ErrCodeGenerationExhausted, got %v", err)
	}
	if codes.calls != directory.DefaultCodeAttempts {
		t.Errorf("expected %d attempts, got %d", directory.DefaultCodeAttempts, codes.calls)
	}
}

func TestRandomCodes(t *testing.T) {
	counts := map[rune]int{}
	const n = 3000
	for i := 0; i < n; i++ {
		code, err := directory.RandomCodes{}.NewCode()
		if err != nil {
			t.Fatalf("NewCode failed: %v", err)
		}
		if !models.ValidJoinCode(code) {
			t.Fatalf("invalid code %q", code)
		}
		for _, c := range code {
			counts[c]++
		}
	}
	if len(counts) != len(models.JoinCodeAlphabet) {
		t.Errorf("saw %d distinct symbols, want %d", len(counts), len(models.JoinCodeAlphabet))
	}
	// 18000 symbols over 36 gives 500 expected each; allow a wide band.
	for c, k := range counts {
		if k < 350 || k > 650 {
			t.Errorf("symbol %c drawn %d times", c, k)
		}
	}
}

func TestJoinGroup(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)

	tests := []struct {
		name string
		code string
		user string
		want error
	}{
		{name: "too short", code: "AB12", user: b, want: errs.ErrValidation},
		{name: "bad symbol", code: "AB-2CD", user: b, want: errs.ErrValidation},
		{name: "unknown code", code: "ZZ99ZZ", user: b, want: errs.ErrNotFound},
		{name: "already member", code: "AB12CD", user: a, want: errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.dir.JoinGroup(as(tt.user), tt.code, tt.user); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if _, err := e.dir.JoinGroup(as(b), " ab12cd ", b); err != nil {
				t.Fatalf("JoinGroup #%d failed: %v", i+1, err)
			}
		}
		got, _ := e.groups.GetByID(context.Background(), g.ID)
		if len(got.PendingMembers) != 1 {
			t.Errorf("pending = %v, want one entry", got.PendingMembers)
		}
	})
}

func TestJoinGroup_ConcurrentJoinsKeepEveryRequest(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	e.groups.SetConflictAttempts(50)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = e.user(t, string(rune('a'+i))+"joiner")
	}
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := e.dir.JoinGroup(as(id), "AB12CD", id); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("JoinGroup failed: %v", err)
	}

	got, _ := e.groups.GetByID(context.Background(), g.ID)
	if len(got.PendingMembers) != n {
		t.Errorf("pending = %d, want %d", len(got.PendingMembers), n)
	}
}

func TestApproveReject(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	c := e.user(t, "carol")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	_, _ = e.dir.JoinGroup(as(b), "AB12CD", b)
	_, _ = e.dir.JoinGroup(as(c), "AB12CD", c)

	if _, err := e.dir.ApproveMember(as(c), g.ID, b); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("pending user approving: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := e.dir.ApproveMember(as(a), g.ID, "nobody"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("not pending: expected ErrNotFound, got %v", err)
	}
	if _, err := e.dir.ApproveMember(as(a), g.ID, b); err != nil {
		t.Fatalf("ApproveMember failed: %v", err)
	}
	if _, err := e.dir.ApproveMember(as(b), g.ID, c); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("member approving: expected ErrPermissionDenied, got %v", err)
	}

	pending, err := e.dir.ListPending(as(a), g.ID)
	if err != nil || len(pending) != 1 || pending[0] != c {
		t.Errorf("ListPending = %v, %v", pending, err)
	}

	g, err = e.dir.RejectMember(as(a), g.ID, c)
	if err != nil {
		t.Fatalf("RejectMember failed: %v", err)
	}
	if g.IsPending(c) || g.IsMember(c) {
		t.Error("carol should be gone")
	}
}

func TestApproveMember_Concurrent(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	a2 := e.user(t, "anna")
	b := e.user(t, "bob")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	_, _ = e.dir.JoinGroup(as(a2), "AB12CD", a2)
	_, _ = e.dir.ApproveMember(as(a), g.ID, a2)
	_, _ = e.dir.SetMemberRole(as(a), g.ID, a2, models.RoleAdmin)
	_, _ = e.dir.JoinGroup(as(b), "AB12CD", b)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, admin := range []string{a, a2} {
		wg.Add(1)
		go func(i int, admin string) {
			defer wg.Done()
			_, results[i] = e.dir.ApproveMember(as(admin), g.ID, b)
		}(i, admin)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrConcurrentModification):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one approval to succeed, got %d", ok)
	}
	got, _ := e.groups.GetByID(context.Background(), g.ID)
	count := 0
	for _, id := range got.Members {
		if id == b {
			count++
		}
	}
	if count != 1 || got.IsPending(b) {
		t.Errorf("bob appears %d times in members, pending=%v", count, got.IsPending(b))
	}
}

func TestLeaveGroup(t *testing.T) {
	setup := func(t *testing.T) (*env, models.Group, string, string) {
		e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
		a := e.user(t, "alice")
		b := e.user(t, "bob")
		g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
		_, _ = e.dir.JoinGroup(as(b), "AB12CD", b)
		g, _ = e.dir.ApproveMember(as(a), g.ID, b)
		return e, g, a, b
	}

	t.Run("last admin without successor", func(t *testing.T) {
		e, g, a, _ := setup(t)
		if _, err := e.dir.LeaveGroup(as(a), g.ID, a, ""); !errors.Is(err, errs.ErrLastAdmin) {
			t.Errorf("expected ErrLastAdmin, got %v", err)
		}
	})

	t.Run("last admin with successor", func(t *testing.T) {
		e, g, a, b := setup(t)
		g, err := e.dir.LeaveGroup(as(a), g.ID, a, b)
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if g.IsMember(a) {
			t.Error("alice should be gone")
		}
		if role, _ := g.RoleOf(b); role != models.RoleAdmin {
			t.Errorf("bob role = %q, want admin", role)
		}
		u, _ := e.users.GetByID(context.Background(), a)
		if u.GroupID != "" {
			t.Errorf("alice still references group %q", u.GroupID)
		}
	})

	t.Run("successor must be member", func(t *testing.T) {
		e, g, a, _ := setup(t)
		if _, err := e.dir.LeaveGroup(as(a), g.ID, a, "stranger"); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("plain member", func(t *testing.T) {
		e, g, _, b := setup(t)
		g, err := e.dir.LeaveGroup(as(b), g.ID, b, "")
		if err != nil || g.IsMember(b) {
			t.Errorf("LeaveGroup: member=%v err=%v", g.IsMember(b), err)
		}
	})

	t.Run("sole member", func(t *testing.T) {
		e := newEnv(t, nil)
		a := e.user(t, "alice")
		g, _ := e.dir.CreateGroup(as(a), "Solo", a)
		g, err := e.dir.LeaveGroup(as(a), g.ID, a, "")
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if len(g.Members) != 0 {
			t.Errorf("members = %v", g.Members)
		}
		if g.Status != groupstore.StatusDormant || len(g.PendingMembers) != 0 {
			t.Errorf("status = %q pending = %v, want dormant and none", g.Status, g.PendingMembers)
		}
		if _, err := e.groups.GetByCode(context.Background(), g.Code); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("dormant code still resolves: %v", err)
		}
		b := e.user(t, "bob")
		if _, err := e.dir.JoinGroup(as(b), g.Code, b); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("join dormant group: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("sole member drops pending requests", func(t *testing.T) {
		e := newEnv(t, &seqCodes{codes: []string{"SOLO01"}})
		a := e.user(t, "alice")
		b := e.user(t, "bob")
		g, _ := e.dir.CreateGroup(as(a), "Solo", a)
		_, _ = e.dir.JoinGroup(as(b), "SOLO01", b)
		g, err := e.dir.LeaveGroup(as(a), g.ID, a, "")
		if err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		if g.IsPending(b) || g.Status != groupstore.StatusDormant {
			t.Errorf("pending = %v status = %q", g.PendingMembers, g.Status)
		}
	})

	t.Run("non-admin cannot name successor", func(t *testing.T) {
		e, g, a, b := setup(t)
		c := e.user(t, "carol")
		_, _ = e.dir.JoinGroup(as(c), "AB12CD", c)
		_, _ = e.dir.ApproveMember(as(a), g.ID, c)

		if _, err := e.dir.LeaveGroup(as(b), g.ID, b, c); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		got, _ := e.groups.GetByID(context.Background(), g.ID)
		if role, _ := got.RoleOf(c); role != models.RoleMember {
			t.Errorf("carol role = %q, want member", role)
		}
		if !got.IsMember(b) {
			t.Error("refused leave must not remove bob")
		}
	})

	t.Run("member removing another needs admin", func(t *testing.T) {
		e, g, a, b := setup(t)
		if _, err := e.dir.LeaveGroup(as(b), g.ID, a, ""); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
	})
}

func TestMembership_OneGroupPerUser(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AAAAA1", "BBBBB2"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	c := e.user(t, "carol")
	reds, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	blues, err := e.dir.CreateGroup(as(b), "The Blues", b)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := e.dir.CreateGroup(as(a), "The Greens", a); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("second create: expected ErrValidation, got %v", err)
	}
	if _, err := e.dir.JoinGroup(as(a), blues.Code, a); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("member joining another group: expected ErrValidation, got %v", err)
	}

	// Pending in both; only the first approval sticks.
	_, _ = e.dir.JoinGroup(as(c), reds.Code, c)
	_, _ = e.dir.JoinGroup(as(c), blues.Code, c)
	if _, err := e.dir.ApproveMember(as(a), reds.ID, c); err != nil {
		t.Fatalf("ApproveMember failed: %v", err)
	}
	if _, err := e.dir.ApproveMember(as(b), blues.ID, c); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("second approval: expected ErrValidation, got %v", err)
	}
	u, _ := e.users.GetByID(context.Background(), c)
	if u.GroupID != reds.ID {
		t.Errorf("carol references %q, want %q", u.GroupID, reds.ID)
	}

	// Leaving frees the user for another group.
	if _, err := e.dir.LeaveGroup(as(c), reds.ID, c, ""); err != nil {
		t.Fatalf("LeaveGroup failed: %v", err)
	}
	if _, err := e.dir.ApproveMember(as(b), blues.ID, c); err != nil {
		t.Errorf("approval after leaving: %v", err)
	}
}

func TestSetMemberRole(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	_, _ = e.dir.JoinGroup(as(b), "AB12CD", b)
	_, _ = e.dir.ApproveMember(as(a), g.ID, b)

	if _, err := e.dir.SetMemberRole(as(a), g.ID, a, models.RoleMember); !errors.Is(err, errs.ErrLastAdmin) {
		t.Errorf("demote last admin: expected ErrLastAdmin, got %v", err)
	}
	if _, err := e.dir.SetMemberRole(as(a), g.ID, b, "roadie"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unknown role: expected ErrValidation, got %v", err)
	}
	if _, err := e.dir.SetMemberRole(as(b), g.ID, b, models.RoleAdmin); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("self promote: expected ErrPermissionDenied, got %v", err)
	}
	g, err := e.dir.SetMemberRole(as(a), g.ID, b, models.RoleMusician)
	if err != nil {
		t.Fatalf("SetMemberRole failed: %v", err)
	}
	if role, _ := g.RoleOf(b); role != models.RoleMusician {
		t.Errorf("bob role = %q", role)
	}
	u, _ := e.users.GetByID(context.Background(), b)
	if u.Role != models.RoleMusician {
		t.Errorf("mirrored role = %q", u.Role)
	}
}

func TestCancelJoinAndGetGroup(t *testing.T) {
	e := newEnv(t, &seqCodes{codes: []string{"AB12CD"}})
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	g, _ := e.dir.CreateGroup(as(a), "The Reds", a)
	_, _ = e.dir.JoinGroup(as(b), "AB12CD", b)

	if _, err := e.dir.GetGroup(as(b), g.ID); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("pending GetGroup: expected ErrPermissionDenied, got %v", err)
	}
	if err := e.dir.CancelJoin(as(b), g.ID); err != nil {
		t.Fatalf("CancelJoin failed: %v", err)
	}
	if err := e.dir.CancelJoin(as(b), g.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second CancelJoin: expected ErrNotFound, got %v", err)
	}
	got, err := e.dir.GetGroup(as(a), g.ID)
	if err != nil || got.IsPending(b) {
		t.Errorf("GetGroup: pending=%v err=%v", got.IsPending(b), err)
	}
	mine, err := e.dir.MyGroups(as(a))
	if err != nil || len(mine) != 1 {
		t.Errorf("MyGroups = %v, %v", mine, err)
	}
}
