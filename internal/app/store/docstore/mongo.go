package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps a database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// Ping checks the primary is reachable.
func (s *Mongo) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (s *Mongo) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return nil, classify(collection, id, err)
	}
	return raw, nil
}

func (s *Mongo) Query(ctx context.Context, collection string, filters ...Filter) ([]bson.Raw, error) {
	q, err := toMongoFilter(filters)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(collection).Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify(collection, "", err)
	}
	defer cur.Close(ctx)

	var out []bson.Raw
	for cur.Next(ctx) {
		// cur.Current is reused by the next call to Next.
		out = append(out, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, classify(collection, "", err)
	}
	return out, nil
}

// Put replaces the document and bumps its revision in one server-side
// pipeline update, creating it when absent.
func (s *Mongo) Put(ctx context.Context, collection, id string, doc any) error {
	d, err := prepare(id, doc, 0)
	if err != nil {
		return err
	}
	d = d[:len(d)-1] // drop the placeholder _rev; the pipeline computes it

	pipeline := mongo.Pipeline{
		{{Key: "$replaceWith", Value: bson.M{
			"$mergeObjects": bson.A{
				bson.M{"$literal": d},
				bson.M{RevisionField: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + RevisionField, 0}}, 1}}},
			},
		}}},
	}
	_, err = s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, pipeline, options.Update().SetUpsert(true))
	if err != nil {
		return classify(collection, id, err)
	}
	return nil
}

func (s *Mongo) Update(ctx context.Context, collection, id string, mutate Mutator) (bson.Raw, error) {
	c := s.db.Collection(collection)
	cur, err := c.FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return nil, classify(collection, id, err)
	}
	rev := revisionOf(cur)

	next, err := mutate(cur)
	if errors.Is(err, ErrSkipWrite) {
		return cur, nil
	}
	if err != nil {
		return nil, err
	}

	d, err := prepare(id, next, rev+1)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": id, RevisionField: rev}
	if rev == 0 {
		filter = bson.M{"_id": id, "$or": bson.A{
			bson.M{RevisionField: 0},
			bson.M{RevisionField: bson.M{"$exists": false}},
		}}
	}
	res, err := c.ReplaceOne(ctx, filter, d)
	if err != nil {
		return nil, classify(collection, id, err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrConcurrentModification)
	}
	return bson.Marshal(d)
}

func (s *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	}
	return nil
}

func toMongoFilter(filters []Filter) (bson.M, error) {
	q := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case Eq:
			q[f.Field] = f.Value
		case In:
			q[f.Field] = bson.M{"$in": f.Value}
		default:
			return nil, fmt.Errorf("docstore: unsupported op %q", f.Op)
		}
	}
	return q, nil
}

// classify maps driver errors onto the store taxonomy.
func classify(collection, id string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
	case wafflemongo.IsDup(err):
		return fmt.Errorf("%s: %w", collection, errs.ErrDuplicate)
	case errors.Is(err, context.Canceled):
		return err
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("%s: %w: %v", collection, errs.ErrUpstreamUnavailable, err)
	}
	return err
}
