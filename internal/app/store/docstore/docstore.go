// Package docstore is the boundary to the hosted document database.
//
// Documents travel as bson.Raw. Every stored document carries a "_rev"
// counter maintained by the store; Update applies a mutator and writes
// the result only if "_rev" is unchanged since the read (optimistic
// concurrency). Typed readers live in decode.go.
package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// RevisionField is the name of the per-document revision counter.
const RevisionField = "_rev"

// Op is a filter comparison.
type Op string

const (
	// Eq matches equal scalars, or arrays containing the value.
	Eq Op = "eq"
	// In matches a scalar equal to any element of a []string value.
	In Op = "in"
)

// Filter is one conjunct of a query.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: Eq, Value: value}
}

// Mutator receives the current document and returns its replacement.
// Returning ErrSkipWrite leaves the document untouched.
type Mutator func(current bson.Raw) (any, error)

// Store is the collaborator interface every backend implements.
// Implementations must be safe for concurrent use.
//
// Errors: Get/Update/Delete return errs.ErrNotFound for missing ids;
// Update returns errs.ErrConcurrentModification when the revision moved;
// Put returns errs.ErrDuplicate when a unique field is taken; transient
// failures wrap errs.ErrUpstreamUnavailable.
type Store interface {
	Get(ctx context.Context, collection, id string) (bson.Raw, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]bson.Raw, error)
	Put(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, mutate Mutator) (bson.Raw, error)
	Delete(ctx context.Context, collection, id string) error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errSkip is returned by mutators that decide no write is needed.
type errSkip struct{}

func (errSkip) Error() string { return "docstore: skip write" }

// ErrSkipWrite tells Update to return the current document unchanged.
var ErrSkipWrite error = errSkip{}

// prepare marshals doc into a bson.D with _id first and _rev set to rev.
// Any _id or _rev already present in doc is overwritten.
func prepare(id string, doc any, rev int64) (bson.D, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal: %w", err)
	}
	var fields bson.D
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("docstore: unmarshal: %w", err)
	}
	out := make(bson.D, 0, len(fields)+2)
	out = append(out, bson.E{Key: "_id", Value: id})
	for _, f := range fields {
		if f.Key == "_id" || f.Key == RevisionField {
			continue
		}
		out = append(out, f)
	}
	out = append(out, bson.E{Key: RevisionField, Value: rev})
	return out, nil
}

// revisionOf reads the _rev counter of a stored document (0 if absent).
func revisionOf(raw bson.Raw) int64 {
	v, err := raw.LookupErr(RevisionField)
	if err != nil {
		return 0
	}
	if n, ok := v.Int64OK(); ok {
		return n
	}
	if n, ok := v.Int32OK(); ok {
		return int64(n)
	}
	return 0
}
