package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore adapts a Cloud Firestore client to Store.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

type fsSnapshot struct {
	snap *firestore.DocumentSnapshot
}

func (s fsSnapshot) ID() string { return s.snap.Ref.ID }

func (s fsSnapshot) DataTo(v interface{}) error { return s.snap.DataTo(v) }

func mapFirestoreErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func toUpdates(fields map[string]interface{}) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	return updates
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return fsSnapshot{snap: snap}, nil
}

func (f *Firestore) Set(ctx context.Context, collection, id string, v interface{}) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, v)
	return err
}

func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	_, err := f.client.Collection(collection).Doc(id).Update(ctx, toUpdates(fields))
	return mapFirestoreErr(err)
}

func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := f.client.Collection(collection).Doc(id).Delete(ctx)
	return err
}

func (f *Firestore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	query := f.client.Collection(collection).Query
	for _, filter := range q.Filters {
		query = query.Where(filter.Field, filter.Op, filter.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	snaps := make([]Snapshot, len(docs))
	for i, d := range docs {
		snaps[i] = fsSnapshot{snap: d}
	}
	return snaps, nil
}

func (f *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &fsTx{client: f.client, tx: tx})
	})
}

func (f *Firestore) Batch() Batch {
	return &fsBatch{client: f.client, batch: f.client.Batch()}
}

type fsTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *fsTx) Get(collection, id string) (Snapshot, error) {
	snap, err := t.tx.Get(t.client.Collection(collection).Doc(id))
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	if !snap.Exists() {
		return nil, ErrNotFound
	}
	return fsSnapshot{snap: snap}, nil
}

func (t *fsTx) Set(collection, id string, v interface{}) error {
	return t.tx.Set(t.client.Collection(collection).Doc(id), v)
}

func (t *fsTx) Update(collection, id string, fields map[string]interface{}) error {
	return t.tx.Update(t.client.Collection(collection).Doc(id), toUpdates(fields))
}

func (t *fsTx) Delete(collection, id string) error {
	return t.tx.Delete(t.client.Collection(collection).Doc(id))
}

type fsBatch struct {
	client *firestore.Client
	batch  *firestore.WriteBatch
	n      int
}

func (b *fsBatch) Set(collection, id string, v interface{}) {
	b.batch.Set(b.client.Collection(collection).Doc(id), v)
	b.n++
}

func (b *fsBatch) Update(collection, id string, fields map[string]interface{}) {
	b.batch.Update(b.client.Collection(collection).Doc(id), toUpdates(fields))
	b.n++
}

func (b *fsBatch) Delete(collection, id string) {
	b.batch.Delete(b.client.Collection(collection).Doc(id))
	b.n++
}

func (b *fsBatch) Len() int { return b.n }

func (b *fsBatch) Commit(ctx context.Context) error {
	if b.n == 0 {
		return nil
	}
	if b.n > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds limit of %d", b.n, MaxBatchWrites)
	}
	_, err := b.batch.Commit(ctx)
	if errors.Is(mapFirestoreErr(err), ErrNotFound) {
		return fmt.Errorf("batch commit: %w", ErrNotFound)
	}
	return err
}
