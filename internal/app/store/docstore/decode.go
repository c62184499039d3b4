package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultConflictAttempts bounds how often Mutate re-runs after losing
// an optimistic-concurrency race.
const DefaultConflictAttempts = 5

// Validator is implemented by every typed record.
type Validator interface {
	Validate() error
}

// Record constrains a pointer-to-record type.
type Record[T any] interface {
	*T
	Validator
}

// Decode unmarshals raw into a T and validates it. Any failure is a
// *errs.DecodeError.
func Decode[T any, P Record[T]](collection string, raw bson.Raw) (T, error) {
	var v T
	id := ""
	if idv, err := raw.LookupErr("_id"); err == nil {
		id, _ = idv.StringValueOK()
	}
	if err := bson.Unmarshal(raw, &v); err != nil {
		return v, &errs.DecodeError{Collection: collection, ID: id, Err: err}
	}
	if err := P(&v).Validate(); err != nil {
		return v, &errs.DecodeError{Collection: collection, ID: id, Err: err}
	}
	return v, nil
}

// GetAs loads and decodes one document.
func GetAs[T any, P Record[T]](ctx context.Context, s Store, collection, id string) (T, error) {
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T, P](collection, raw)
}

// QueryAs runs a query and decodes every result. One malformed document
// fails the whole call.
func QueryAs[T any, P Record[T]](ctx context.Context, s Store, collection string, filters ...Filter) ([]T, error) {
	raws, err := s.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		v, err := Decode[T, P](collection, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Mutate applies fn to the current document under optimistic
// concurrency. When another writer wins the race the read-modify-write
// is repeated, up to attempts times, with a short Fibonacci backoff.
// fn may return ErrSkipWrite to leave the document as is. The mutated
// record must still validate; otherwise nothing is written and an
// errs.ErrValidation is returned.
func Mutate[T any, P Record[T]](ctx context.Context, s Store, collection, id string, attempts int, fn func(P) error) (T, error) {
	if attempts <= 0 {
		attempts = DefaultConflictAttempts
	}
	var out T
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewFibonacci(5*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		raw, err := s.Update(ctx, collection, id, func(cur bson.Raw) (any, error) {
			v, err := Decode[T, P](collection, cur)
			if err != nil {
				return nil, err
			}
			if err := fn(P(&v)); err != nil {
				return nil, err
			}
			if err := P(&v).Validate(); err != nil {
				return nil, errs.Validation("%s", err.Error())
			}
			return &v, nil
		})
		if errors.Is(err, errs.ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out, err = Decode[T, P](collection, raw)
		return err
	})
	return out, err
}
