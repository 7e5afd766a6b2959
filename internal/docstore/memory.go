package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Transactions are fully serialized behind a
// single mutex, which is stricter than the serializable isolation the other
// backends provide. Documents are kept in their JSON form, so models must
// carry json tags matching their firestore/bson field names.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]map[string]interface{})}
}

type memSnapshot struct {
	id   string
	data map[string]interface{}
}

func (s *memSnapshot) ID() string { return s.id }

func (s *memSnapshot) DataTo(v interface{}) error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Raw returns the stored field value at a dotted path, for assertions on
// fields that decode ambiguously (for example an explicit null).
func (m *Memory) Raw(collection, id, path string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, false
	}
	return lookup(doc, path)
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

func (m *Memory) Get(_ context.Context, collection, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(collection, id)
}

func (m *Memory) Set(_ context.Context, collection, id string, v interface{}) error {
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, doc)
	return nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(collection, id, fields)
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Snapshot, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := toValue(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	m.mu.Lock()
	var out []*memSnapshot
	for id, doc := range m.collections[collection] {
		if matches(doc, filters) {
			out = append(out, &memSnapshot{id: id, data: clone(doc)})
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].id < out[j].id
		}
		a, _ := lookup(out[i].data, q.OrderBy)
		b, _ := lookup(out[j].data, q.OrderBy)
		c := compareValues(a, b)
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	snaps := make([]Snapshot, len(out))
	for i, s := range out {
		snaps[i] = s
	}
	return snaps, nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Batch() Batch {
	return &memBatch{m: m}
}

func (m *Memory) get(collection, id string) (Snapshot, error) {
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &memSnapshot{id: id, data: clone(doc)}, nil
}

func (m *Memory) put(collection, id string, doc map[string]interface{}) {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]interface{})
		m.collections[collection] = coll
	}
	coll[id] = doc
}

func (m *Memory) update(collection, id string, fields map[string]interface{}) error {
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for path, value := range fields {
		v, err := toValue(value)
		if err != nil {
			return err
		}
		assign(doc, path, v)
	}
	return nil
}

type memTx struct {
	m       *Memory
	ops     []func() error
	created map[string]bool
}

func (t *memTx) Get(collection, id string) (Snapshot, error) {
	return t.m.get(collection, id)
}

func (t *memTx) Set(collection, id string, v interface{}) error {
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	if t.created == nil {
		t.created = make(map[string]bool)
	}
	t.created[collection+"/"+id] = true
	t.ops = append(t.ops, func() error {
		t.m.put(collection, id, doc)
		return nil
	})
	return nil
}

func (t *memTx) Update(collection, id string, fields map[string]interface{}) error {
	if _, ok := t.m.collections[collection][id]; !ok && !t.created[collection+"/"+id] {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	t.ops = append(t.ops, func() error {
		return t.m.update(collection, id, fields)
	})
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	t.ops = append(t.ops, func() error {
		delete(t.m.collections[collection], id)
		return nil
	})
	return nil
}

type memBatch struct {
	m   *Memory
	ops []func() error
	err error
}

func (b *memBatch) Set(collection, id string, v interface{}) {
	doc, err := toDoc(v)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.ops = append(b.ops, func() error {
		b.m.put(collection, id, doc)
		return nil
	})
}

func (b *memBatch) Update(collection, id string, fields map[string]interface{}) {
	b.ops = append(b.ops, func() error {
		return b.m.update(collection, id, fields)
	})
}

func (b *memBatch) Delete(collection, id string) {
	b.ops = append(b.ops, func() error {
		delete(b.m.collections[collection], id)
		return nil
	})
}

func (b *memBatch) Len() int { return len(b.ops) }

func (b *memBatch) Commit(_ context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds limit of %d", len(b.ops), MaxBatchWrites)
	}
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	for _, op := range b.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func toDoc(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]interface{})
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document must encode to an object: %w", err)
	}
	return doc, nil
}

func toValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = clone(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(doc map[string]interface{}, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func matches(doc map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(doc, f.Field)
		if !ok {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessEqual:
			if c > 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterEqual:
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders JSON-decoded values. Timestamps are stored as RFC 3339
// strings and compared as instants. Values of different kinds compare unequal.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return -1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			return -1
		}
		at, aErr := time.Parse(time.RFC3339Nano, av)
		bt, bErr := time.Parse(time.RFC3339Nano, bv)
		if aErr == nil && bErr == nil {
			return at.Compare(bt)
		}
		return strings.Compare(av, bv)
	case bool:
		bv, ok := b.(bool)
		if !ok || av != bv {
			return -1
		}
		return 0
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	return -1
}
