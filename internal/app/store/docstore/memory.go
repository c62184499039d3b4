package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store used by tests and single-node setups.
// It stores marshaled documents, so decoding behaves exactly as it does
// against MongoDB.
type Memory struct {
	mu     sync.RWMutex
	colls  map[string]map[string]bson.Raw
	unique map[string][]string // collection -> unique fields

	// fail, when set, makes the next failN calls return failErr.
	failN   int
	failErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		colls:  make(map[string]map[string]bson.Raw),
		unique: make(map[string][]string),
	}
}

// Unique declares a unique field on a collection, mirroring a unique index.
func (m *Memory) Unique(collection, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[collection] = append(m.unique[collection], field)
}

// FailNext makes the next n calls fail with err. Used to exercise retries.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

func (m *Memory) injected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN > 0 {
		m.failN--
		return m.failErr
	}
	return nil
}

// Ping fails only while FailNext is armed.
func (m *Memory) Ping(context.Context) error {
	return m.injected()
}

func (m *Memory) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	if err := m.injected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.colls[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	}
	return raw, nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]bson.Raw, error) {
	if err := m.injected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.colls[collection]))
	for id := range m.colls[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []bson.Raw
	for _, id := range ids {
		raw := m.colls[collection][id]
		ok, err := matches(raw, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (m *Memory) Put(ctx context.Context, collection, id string, doc any) error {
	if err := m.injected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var rev int64
	if cur, ok := m.colls[collection][id]; ok {
		rev = revisionOf(cur)
	}
	return m.writeLocked(collection, id, doc, rev+1)
}

func (m *Memory) Update(ctx context.Context, collection, id string, mutate Mutator) (bson.Raw, error) {
	if err := m.injected(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	cur, ok := m.colls[collection][id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	}
	rev := revisionOf(cur)

	// The mutator runs without the lock so concurrent writers can race;
	// the revision check below decides the winner.
	next, err := mutate(cur)
	if errors.Is(err, ErrSkipWrite) {
		return cur, nil
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now, ok := m.colls[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	}
	if revisionOf(now) != rev {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrConcurrentModification)
	}
	if err := m.writeLocked(collection, id, next, rev+1); err != nil {
		return nil, err
	}
	return m.colls[collection][id], nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := m.injected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.colls[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	}
	delete(m.colls[collection], id)
	return nil
}

func (m *Memory) writeLocked(collection, id string, doc any, rev int64) error {
	d, err := prepare(id, doc, rev)
	if err != nil {
		return err
	}
	b, err := bson.Marshal(d)
	if err != nil {
		return fmt.Errorf("docstore: marshal: %w", err)
	}
	raw := bson.Raw(b)
	for _, field := range m.unique[collection] {
		v, err := raw.LookupErr(field)
		if err != nil {
			continue
		}
		for otherID, other := range m.colls[collection] {
			if otherID == id {
				continue
			}
			if ov, err := other.LookupErr(field); err == nil && ov.Equal(v) {
				return fmt.Errorf("%s.%s: %w", collection, field, errs.ErrDuplicate)
			}
		}
	}
	if m.colls[collection] == nil {
		m.colls[collection] = make(map[string]bson.Raw)
	}
	m.colls[collection][id] = raw
	return nil
}

func matches(raw bson.Raw, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("docstore: unmarshal: %w", err)
	}
	for _, f := range filters {
		v, present := doc[f.Field]
		switch f.Op {
		case Eq:
			if !present || !eqOrContains(v, f.Value) {
				return false, nil
			}
		case In:
			want, ok := f.Value.([]string)
			if !ok {
				return false, fmt.Errorf("docstore: %s filter on %s needs []string", f.Op, f.Field)
			}
			hit := false
			for _, w := range want {
				if present && eqOrContains(v, w) {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported op %q", f.Op)
		}
	}
	return true, nil
}

// eqOrContains follows MongoDB equality: an array field matches when any
// element equals want.
func eqOrContains(v, want any) bool {
	if arr, ok := v.(primitive.A); ok {
		for _, el := range arr {
			if scalarEqual(el, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(v, want)
}

func scalarEqual(a, b any) bool {
	if x, ok := asInt64(a); ok {
		if y, ok := asInt64(b); ok {
			return x == y
		}
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.String && rb.Kind() == reflect.String {
		return ra.String() == rb.String()
	}
	return reflect.DeepEqual(a, b)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
