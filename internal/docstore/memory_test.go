package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Name      string    `json:"name"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func TestMemoryGetMissing(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "counters", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemorySetGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "counters", "a", counter{Name: "a", Value: 1}))
	require.NoError(t, s.Update(ctx, "counters", "a", map[string]interface{}{"value": 5}))

	snap, err := s.Get(ctx, "counters", "a")
	require.NoError(t, err)
	var c counter
	require.NoError(t, snap.DataTo(&c))
	assert.Equal(t, "a", snap.ID())
	assert.Equal(t, 5, c.Value)

	err = s.Update(ctx, "counters", "missing", map[string]interface{}{"value": 1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryNestedUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]interface{}{"prefs": map[string]interface{}{"likes": true}}))
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]interface{}{"prefs.likes": false, "pushToken": nil}))

	v, ok := s.Raw("users", "u1", "prefs.likes")
	require.True(t, ok)
	assert.Equal(t, false, v)
	v, ok = s.Raw("users", "u1", "pushToken")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestMemoryQueryFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, "counters", fmt.Sprintf("c%d", i), counter{
			Name:      "c",
			Value:     i,
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	snaps, err := s.Query(ctx, "counters", Query{
		Filters: []Filter{{Field: "updatedAt", Op: OpLess, Value: base.Add(3 * time.Hour)}},
		OrderBy: "value",
		Desc:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1", "c0"}, IDs(snaps))

	snaps, err = s.Query(ctx, "counters", Query{
		Filters: []Filter{{Field: "value", Op: OpGreaterEqual, Value: 1}},
		OrderBy: "value",
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, IDs(snaps))

	snaps, err = s.Query(ctx, "counters", Where("value", OpEqual, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"c4"}, IDs(snaps))
}

func TestMemoryTransactionDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "counters", "a", counter{Value: 1}))

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Update("counters", "a", map[string]interface{}{"value": 2}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	snap, err := s.Get(ctx, "counters", "a")
	require.NoError(t, err)
	var c counter
	require.NoError(t, snap.DataTo(&c))
	assert.Equal(t, 1, c.Value)
}

func TestMemoryTransactionsAreSerializable(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "counters", "a", counter{}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				snap, err := tx.Get("counters", "a")
				if err != nil {
					return err
				}
				var c counter
				if err := snap.DataTo(&c); err != nil {
					return err
				}
				return tx.Update("counters", "a", map[string]interface{}{"value": c.Value + 1})
			})
		}()
	}
	wg.Wait()

	snap, err := s.Get(ctx, "counters", "a")
	require.NoError(t, err)
	var c counter
	require.NoError(t, snap.DataTo(&c))
	assert.Equal(t, 50, c.Value)
}

func TestDeleteAllChunksBatches(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	ids := make([]string, 0, 950)
	for i := 0; i < 950; i++ {
		id := fmt.Sprintf("d%03d", i)
		ids = append(ids, id)
		require.NoError(t, s.Set(ctx, "docs", id, counter{Value: i}))
	}

	n, err := DeleteAll(ctx, s, "docs", ids)
	require.NoError(t, err)
	assert.Equal(t, 950, n)
	assert.Equal(t, 0, s.Count("docs"))
}

func TestMemoryBatchRejectsOversize(t *testing.T) {
	s := NewMemory()
	b := s.Batch()
	for i := 0; i <= MaxBatchWrites; i++ {
		b.Delete("docs", fmt.Sprintf("%d", i))
	}
	assert.Error(t, b.Commit(context.Background()))
}
