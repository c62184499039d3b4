// Package recordfilter narrows and orders an in-memory record set.
// It does no I/O.
package recordfilter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Record is what the engine needs from a record.
type Record interface {
	RecordID() string
	RecordDate() time.Time
	RecordAmount() int64
	RecordCategory() string
	RecordType() string
}

// Filter holds the inclusion predicates. Zero fields accept everything.
// Date and amount bounds are inclusive.
type Filter struct {
	Categories []string
	From       time.Time
	To         time.Time
	MinAmount  *int64
	MaxAmount  *int64
	Type       string
}

// SortKey names the primary sort field.
type SortKey string

const (
	ByDate   SortKey = "date"
	ByAmount SortKey = "amount"
)

// Order is the requested sort. Ties break on record id ascending.
type Order struct {
	Key  SortKey
	Desc bool
}

// ParseOrder reads forms like "date", "-date", "amount:desc".
func ParseOrder(s string) (Order, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Order{Key: ByDate}, nil
	}
	var o Order
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		o.Desc = true
		s = rest
	}
	if key, dir, ok := strings.Cut(s, ":"); ok {
		switch dir {
		case "asc":
		case "desc":
			o.Desc = true
		default:
			return Order{}, fmt.Errorf("unknown sort direction %q", dir)
		}
		s = key
	}
	switch SortKey(s) {
	case ByDate, ByAmount:
		o.Key = SortKey(s)
	default:
		return Order{}, fmt.Errorf("unknown sort key %q", s)
	}
	return o, nil
}

// Match reports whether r satisfies every predicate of f.
func (f Filter) Match(r Record) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, r.RecordCategory()) {
		return false
	}
	d := r.RecordDate()
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	a := r.RecordAmount()
	if f.MinAmount != nil && a < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && a > *f.MaxAmount {
		return false
	}
	if f.Type != "" && r.RecordType() != f.Type {
		return false
	}
	return true
}

// Apply returns a new slice holding the records of in that match f,
// sorted by o. in is not modified.
func Apply[T Record](in []T, f Filter, o Order) []T {
	out := make([]T, 0, len(in))
	for _, r := range in {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	Sort(out, o)
	return out
}

// Sort orders records in place by o.
func Sort[T Record](records []T, o Order) {
	slices.SortStableFunc(records, func(a, b T) int {
		var c int
		switch o.Key {
		case ByAmount:
			c = cmp.Compare(a.RecordAmount(), b.RecordAmount())
		default:
			c = a.RecordDate().Compare(b.RecordDate())
		}
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.RecordID(), b.RecordID())
	})
}
