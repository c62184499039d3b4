package docstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type note struct {
	ID   string   `bson:"_id"`
	Text string   `bson:"text"`
	Tags []string `bson:"tags"`
	Rev  int64    `bson:"_rev"`
}

func (n *note) Validate() error {
	if n.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

func TestMemory_PutGet_BumpsRevision(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()

	if err := s.Put(ctx, "notes", "n1", note{Text: "a"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "notes", "n1", note{Text: "b"}); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := docstore.GetAs[note](ctx, s, "notes", "n1")
	if err != nil {
		t.Fatalf("GetAs failed: %v", err)
	}
	if got.ID != "n1" {
		t.Errorf("ID: got %q, want n1", got.ID)
	}
	if got.Text != "b" {
		t.Errorf("Text: got %q, want b", got.Text)
	}
	if got.Rev != 2 {
		t.Errorf("Rev: got %d, want 2", got.Rev)
	}
}

func TestMemory_Get_NotFound(t *testing.T) {
	s := docstore.NewMemory()
	_, err := s.Get(context.Background(), "notes", "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_Query(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "a", note{Text: "x", Tags: []string{"red", "blue"}})
	_ = s.Put(ctx, "notes", "b", note{Text: "y", Tags: []string{"green"}})
	_ = s.Put(ctx, "notes", "c", note{Text: "x", Tags: []string{"blue"}})

	tests := []struct {
		name    string
		filters []docstore.Filter
		want    []string
	}{
		{name: "no filter", want: []string{"a", "b", "c"}},
		{name: "scalar eq", filters: []docstore.Filter{docstore.Where("text", "x")}, want: []string{"a", "c"}},
		{name: "array contains", filters: []docstore.Filter{docstore.Where("tags", "blue")}, want: []string{"a", "c"}},
		{name: "in", filters: []docstore.Filter{{Field: "tags", Op: docstore.In, Value: []string{"green", "red"}}}, want: []string{"a", "b"}},
		{name: "conjunction", filters: []docstore.Filter{docstore.Where("text", "x"), docstore.Where("tags", "red")}, want: []string{"a"}},
		{name: "missing field", filters: []docstore.Filter{docstore.Where("nope", "x")}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := docstore.QueryAs[note](ctx, s, "notes", tt.filters...)
			if err != nil {
				t.Fatalf("QueryAs failed: %v", err)
			}
			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestMemory_Unique(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	s.Unique("notes", "text")

	if err := s.Put(ctx, "notes", "a", note{Text: "same"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	err := s.Put(ctx, "notes", "b", note{Text: "same"})
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	// Rewriting the owner of the value is fine.
	if err := s.Put(ctx, "notes", "a", note{Text: "same"}); err != nil {
		t.Errorf("re-Put of same document failed: %v", err)
	}
}

func TestMemory_Update_DetectsConflict(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "n1", note{Text: "v1"})

	_, err := s.Update(ctx, "notes", "n1", func(cur bson.Raw) (any, error) {
		// A competing writer lands between our read and our write.
		if err := s.Put(ctx, "notes", "n1", note{Text: "other"}); err != nil {
			t.Fatalf("competing Put failed: %v", err)
		}
		return note{Text: "mine"}, nil
	})
	if !errors.Is(err, errs.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	got, _ := docstore.GetAs[note](ctx, s, "notes", "n1")
	if got.Text != "other" {
		t.Errorf("losing write must not land, got %q", got.Text)
	}
}

func TestMutate_RetriesAfterConflict(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "n1", note{Text: "v"})

	calls := 0
	got, err := docstore.Mutate[note](ctx, s, "notes", "n1", 3, func(n *note) error {
		calls++
		if calls == 1 {
			_ = s.Put(ctx, "notes", "n1", note{Text: "v", Tags: []string{"racer"}})
		}
		n.Tags = append(n.Tags, "mine")
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if fmt.Sprint(got.Tags) != "[racer mine]" {
		t.Errorf("Tags: got %v, want [racer mine]", got.Tags)
	}
}

func TestMutate_ExhaustsConflictBudget(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "n1", note{Text: "v"})

	_, err := docstore.Mutate[note](ctx, s, "notes", "n1", 2, func(n *note) error {
		_ = s.Put(ctx, "notes", "n1", note{Text: "always-racing"})
		n.Text = "mine"
		return nil
	})
	if !errors.Is(err, errs.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestMutate_SkipWriteKeepsRevision(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "n1", note{Text: "v"})

	got, err := docstore.Mutate[note](ctx, s, "notes", "n1", 0, func(n *note) error {
		return docstore.ErrSkipWrite
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if got.Rev != 1 {
		t.Errorf("Rev: got %d, want 1", got.Rev)
	}
}

func TestMutate_RejectsInvalidResult(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "n1", note{Text: "v"})

	_, err := docstore.Mutate[note](ctx, s, "notes", "n1", 0, func(n *note) error {
		n.Text = ""
		return nil
	})
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDecode_MalformedDocument(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemory()
	_ = s.Put(ctx, "notes", "bad", bson.M{"text": 42})
	_ = s.Put(ctx, "notes", "empty", bson.M{"text": ""})

	for _, id := range []string{"bad", "empty"} {
		_, err := docstore.GetAs[note](ctx, s, "notes", id)
		if !errors.Is(err, errs.ErrDecode) {
			t.Errorf("%s: expected ErrDecode, got %v", id, err)
		}
		var de *errs.DecodeError
		if errors.As(err, &de) && de.ID != id {
			t.Errorf("DecodeError.ID: got %q, want %q", de.ID, id)
		}
	}
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	_ = mem.Put(ctx, "notes", "n1", note{Text: "v"})
	s := docstore.WithRetry(mem, zap.NewNop()).SetPolicy(3, time.Millisecond)

	mem.FailNext(2, fmt.Errorf("dial: %w", errs.ErrUpstreamUnavailable))
	if _, err := s.Get(ctx, "notes", "n1"); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
}

func TestRetrying_GivesUpAfterBudget(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	s := docstore.WithRetry(mem, zap.NewNop()).SetPolicy(3, time.Millisecond)

	mem.FailNext(3, fmt.Errorf("dial: %w", errs.ErrUpstreamUnavailable))
	err := s.Put(ctx, "notes", "n1", note{Text: "v"})
	if !errors.Is(err, errs.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	// The budget was spent on the three injected failures.
	if err := s.Put(ctx, "notes", "n1", note{Text: "v"}); err != nil {
		t.Errorf("Put after outage failed: %v", err)
	}
}

func TestRetrying_DoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	s := docstore.WithRetry(mem, zap.NewNop()).SetPolicy(3, time.Millisecond)

	mem.FailNext(1, errs.ErrPermissionDenied)
	_, err := s.Get(ctx, "notes", "n1")
	if !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	// Second call reaches the store and reports the real state.
	_, err = s.Get(ctx, "notes", "n1")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
