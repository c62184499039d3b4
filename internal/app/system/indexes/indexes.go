// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/audit"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	"github.com/dalemusser/bandhub/internal/app/store/records"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Unique lists the single-field unique constraints per collection. The
// Mongo indexes below enforce them on the server; ApplyUnique mirrors them
// onto an in-memory store.
var Unique = map[string][]string{
	userstore.Collection:  {"email"},
	groupstore.Collection: {"code"},
}

// ApplyUnique registers Unique on m.
func ApplyUnique(m *docstore.Memory) {
	for coll, fields := range Unique {
		for _, f := range fields {
			m.Unique(coll, f)
		}
	}
}

func asc(keys ...string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return d
}

func named(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name)}
}

func unique(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true).SetName(name)}
}

// desired is every index the application relies on, per collection.
func desired() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		userstore.Collection: {
			unique("uniq_users_email", asc("email")),
			named("idx_users_group", asc("group_id")),
		},
		groupstore.Collection: {
			unique("uniq_groups_code", asc("code")),
			// GetByCode filters on both.
			named("idx_groups_code_status", asc("code", "status")),
			// Multikey; ListByMember.
			named("idx_groups_members", asc("members")),
		},
		records.EventsCollection: {
			named("idx_events_group_starts", asc("group_id", "starts_at")),
		},
		records.FinancesCollection: {
			named("idx_finance_group_date", asc("group_id", "date")),
			named("idx_finance_group_category", asc("group_id", "category")),
		},
		records.MerchItemsCollection: {
			named("idx_merch_items_group", asc("group_id")),
		},
		records.MerchSalesCollection: {
			named("idx_merch_sales_group_item", asc("group_id", "item_id")),
		},
		records.TasksCollection: {
			named("idx_tasks_group_done", asc("group_id", "done")),
		},
		records.ChatsCollection: {
			named("idx_chats_group", asc("group_id")),
		},
		audit.Collection: {
			named("idx_audit_group_ts", asc("group_id", "timestamp")),
		},
	}
}

/*
EnsureAll is called at startup. Each index set is reconciled idempotently;
problems are aggregated so one startup run shows all of them.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string
	for coll, models := range desired() {
		if err := ensureIndexSet(ctx, db.Collection(coll), models, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet creates missing indexes, reuses identical ones and
// replaces same-key indexes whose uniqueness or name differs.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *zap.Logger) error {
	existing, err := listExisting(ctx, coll)
	if err != nil {
		// A missing collection lists nothing on some servers and errors on others.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		name := *m.Options.Name
		wantUnique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", wantUnique),
		}

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == wantUnique && ex.Name == name {
				logger.Debug("reusing existing index", fields...)
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s failed: %v", name, ex.Name, err))
				continue
			}
			logger.Info("dropped mismatched index", append(fields, zap.String("old_name", ex.Name))...)
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if wantUnique && isDuplicateKeyErr(err) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index, duplicate %s values present", name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			}
			logger.Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		logger.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}
