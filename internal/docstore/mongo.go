package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo adapts a MongoDB database to Store. Collections map one to one and
// document ids are stored in _id. Transactions and batches run inside a
// session transaction, so the server must be a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{client: client, db: client.Database(database)}
}

var mongoOps = map[string]string{
	OpEqual:        "$eq",
	OpLess:         "$lt",
	OpLessEqual:    "$lte",
	OpGreater:      "$gt",
	OpGreaterEqual: "$gte",
}

type mongoSnapshot struct {
	id  string
	raw bson.Raw
}

func (s mongoSnapshot) ID() string { return s.id }

func (s mongoSnapshot) DataTo(v interface{}) error { return bson.Unmarshal(s.raw, v) }

func byID(id string) bson.M { return bson.M{"_id": id} }

func (m *Mongo) findOne(ctx context.Context, collection, id string) (Snapshot, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, byID(id)).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return mongoSnapshot{id: id, raw: raw}, nil
}

func (m *Mongo) replace(ctx context.Context, collection, id string, v interface{}) error {
	_, err := m.db.Collection(collection).ReplaceOne(ctx, byID(id), v, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	res, err := m.db.Collection(collection).UpdateOne(ctx, byID(id), bson.M{"$set": bson.M(fields)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) remove(ctx context.Context, collection, id string) error {
	_, err := m.db.Collection(collection).DeleteOne(ctx, byID(id))
	return err
}

func (m *Mongo) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	return m.findOne(ctx, collection, id)
}

func (m *Mongo) Set(ctx context.Context, collection, id string, v interface{}) error {
	return m.replace(ctx, collection, id, v)
}

func (m *Mongo) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return m.update(ctx, collection, id, fields)
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	return m.remove(ctx, collection, id)
}

func (m *Mongo) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		op, ok := mongoOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		cond, _ := filter[f.Field].(bson.M)
		if cond == nil {
			cond = bson.M{}
		}
		cond[op] = f.Value
		filter[f.Field] = cond
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var snaps []Snapshot
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		id, _ := raw.Lookup("_id").StringValueOK()
		snaps = append(snaps, mongoSnapshot{id: id, raw: raw})
	}
	return snaps, cursor.Err()
}

func (m *Mongo) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{m: m, ctx: sc})
	})
	return err
}

func (m *Mongo) Batch() Batch {
	return &mongoBatch{m: m}
}

type mongoTx struct {
	m   *Mongo
	ctx mongo.SessionContext
}

func (t *mongoTx) Get(collection, id string) (Snapshot, error) {
	return t.m.findOne(t.ctx, collection, id)
}

func (t *mongoTx) Set(collection, id string, v interface{}) error {
	return t.m.replace(t.ctx, collection, id, v)
}

func (t *mongoTx) Update(collection, id string, fields map[string]interface{}) error {
	return t.m.update(t.ctx, collection, id, fields)
}

func (t *mongoTx) Delete(collection, id string) error {
	return t.m.remove(t.ctx, collection, id)
}

type mongoBatch struct {
	m   *Mongo
	ops []func(ctx context.Context) error
}

func (b *mongoBatch) Set(collection, id string, v interface{}) {
	b.ops = append(b.ops, func(ctx context.Context) error { return b.m.replace(ctx, collection, id, v) })
}

func (b *mongoBatch) Update(collection, id string, fields map[string]interface{}) {
	b.ops = append(b.ops, func(ctx context.Context) error { return b.m.update(ctx, collection, id, fields) })
}

func (b *mongoBatch) Delete(collection, id string) {
	b.ops = append(b.ops, func(ctx context.Context) error { return b.m.remove(ctx, collection, id) })
}

func (b *mongoBatch) Len() int { return len(b.ops) }

func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds limit of %d", len(b.ops), MaxBatchWrites)
	}
	return b.m.RunTransaction(ctx, func(ctx context.Context, _ Tx) error {
		for _, op := range b.ops {
			if err := op(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
