// Package docstore abstracts the transactional document database the
// notification pipeline coordinates through. All cross-invocation state lives
// here; handlers never share process memory.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// MaxBatchWrites is the number of operations a single Batch may commit.
const MaxBatchWrites = 400

// Filter operators understood by every backend.
const (
	OpEqual        = "=="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Filter restricts a Query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// Query describes a range/equality query against one collection.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where is shorthand for building a single-filter query.
func Where(field, op string, value interface{}) Query {
	return Query{Filters: []Filter{{Field: field, Op: op, Value: value}}}
}

// Snapshot is a read document.
type Snapshot interface {
	ID() string
	DataTo(v interface{}) error
}

// Tx is the handle passed to RunTransaction. Reads must precede writes.
type Tx interface {
	Get(collection, id string) (Snapshot, error)
	Set(collection, id string, v interface{}) error
	Update(collection, id string, fields map[string]interface{}) error
	Delete(collection, id string) error
}

// Batch accumulates writes that are committed atomically.
type Batch interface {
	Set(collection, id string, v interface{})
	Update(collection, id string, fields map[string]interface{})
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Store is the document database capability consumed by the pipeline.
type Store interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	Set(ctx context.Context, collection, id string, v interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	// RunTransaction runs fn with serializable read-then-write semantics.
	// fn may be invoked more than once on contention and must not have side
	// effects outside the transaction.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Batch() Batch
}

// DeleteAll deletes the given documents, committing at most MaxBatchWrites
// per batch. It returns the number of documents deleted before any error.
func DeleteAll(ctx context.Context, s Store, collection string, ids []string) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += MaxBatchWrites {
		end := start + MaxBatchWrites
		if end > len(ids) {
			end = len(ids)
		}
		b := s.Batch()
		for _, id := range ids[start:end] {
			b.Delete(collection, id)
		}
		if err := b.Commit(ctx); err != nil {
			return deleted, err
		}
		deleted += end - start
	}
	return deleted, nil
}

// IDs returns the ids of the given snapshots.
func IDs(snaps []Snapshot) []string {
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID()
	}
	return ids
}
