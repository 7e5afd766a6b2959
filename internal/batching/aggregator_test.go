package batching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduler.CallbackTask
	delay time.Duration
	err   error
	hook  func()
}

func (f *fakeScheduler) ScheduleNotificationTask(_ context.Context, task scheduler.CallbackTask, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	f.delay = delay
	return nil
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func newTestAggregator() (*Aggregator, *docstore.Memory, *fakeScheduler) {
	store := docstore.NewMemory()
	sched := &fakeScheduler{}
	return NewAggregator(store, sched, DefaultDelay), store, sched
}

func loadReactionBatch(t *testing.T, store docstore.Store, id string) models.ReactionBatch {
	t.Helper()
	snap, err := store.Get(context.Background(), models.ReactionBatchesCollection, id)
	require.NoError(t, err)
	var b models.ReactionBatch
	require.NoError(t, snap.DataTo(&b))
	return b
}

func TestBatchedReactionsScenario(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()

	require.NoError(t, agg.AddReactionToBatch(ctx, "photo1", "userA", map[string]int{"😂": 1}))
	require.NoError(t, agg.AddReactionToBatch(ctx, "photo1", "userA", map[string]int{"😂": 1, "❤️": 1}))

	b := loadReactionBatch(t, store, "photo1_userA")
	assert.Equal(t, map[string]int{"😂": 2, "❤️": 1}, b.Reactions)
	assert.Equal(t, models.BatchPending, b.Status)
	assert.True(t, b.TaskScheduled)

	require.Equal(t, 1, sched.count())
	assert.Equal(t, scheduler.ReactionBatchPath, sched.tasks[0].Path)
	assert.Equal(t, "photo1_userA", sched.tasks[0].BatchID)
	assert.Equal(t, b.CycleID, sched.tasks[0].CycleID)
	assert.Equal(t, 30*time.Second, sched.delay)
}

func TestConcurrentMergesSumAndScheduleOnce(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			diff := map[string]int{"🔥": 1}
			if i%2 == 0 {
				diff["❤️"] = 2
			}
			assert.NoError(t, agg.AddReactionToBatch(ctx, "p", "r", diff))
		}(i)
	}
	wg.Wait()

	b := loadReactionBatch(t, store, "p_r")
	assert.Equal(t, map[string]int{"🔥": n, "❤️": n}, b.Reactions)
	assert.Equal(t, 1, sched.count())
}

func TestSentBatchStartsNewCycle(t *testing.T) {
	for _, status := range []models.BatchStatus{models.BatchSent, models.BatchProcessing} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			agg, store, sched := newTestAggregator()
			require.NoError(t, agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"😂": 3}))
			first := loadReactionBatch(t, store, "p_r")
			require.NoError(t, store.Update(ctx, models.ReactionBatchesCollection, "p_r", map[string]interface{}{"status": string(status)}))

			require.NoError(t, agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"❤️": 1}))

			b := loadReactionBatch(t, store, "p_r")
			assert.Equal(t, models.BatchPending, b.Status)
			assert.Equal(t, map[string]int{"❤️": 1}, b.Reactions)
			assert.NotEqual(t, first.CycleID, b.CycleID)
			assert.Equal(t, 2, sched.count())
		})
	}
}

func TestIgnoresEmptyAndNegativeDiffs(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()

	require.NoError(t, agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"😂": 0, "❤️": -1}))
	assert.Equal(t, 0, store.Count(models.ReactionBatchesCollection))
	assert.Equal(t, 0, sched.count())

	assert.ErrorIs(t, agg.AddReactionToBatch(ctx, "", "r", map[string]int{"😂": 1}), ErrInvalidKey)
}

func TestScheduleFailureIsReturnedAndReleased(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()
	sched.err = errors.New("queue down")

	err := agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"😂": 1})
	require.Error(t, err)
	assert.False(t, loadReactionBatch(t, store, "p_r").TaskScheduled)

	sched.err = nil
	require.NoError(t, agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"😂": 1}))
	b := loadReactionBatch(t, store, "p_r")
	assert.True(t, b.TaskScheduled)
	assert.Equal(t, 2, b.Reactions["😂"])
	assert.Equal(t, 1, sched.count())
}

func TestScheduleFailureKeepsNewerCycleClaim(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()
	sched.err = errors.New("queue down")
	sched.hook = func() {
		// The batch is dispatched and replaced by a new scheduled cycle
		// while this enqueue is still in flight.
		require.NoError(t, store.Set(ctx, models.ReactionBatchesCollection, "p_r", models.ReactionBatch{
			PhotoID:       "p",
			ReactorID:     "r",
			Reactions:     map[string]int{"🔥": 1},
			Status:        models.BatchPending,
			TaskScheduled: true,
			CycleID:       "next-cycle",
		}))
	}

	require.Error(t, agg.AddReactionToBatch(ctx, "p", "r", map[string]int{"😂": 1}))

	b := loadReactionBatch(t, store, "p_r")
	assert.Equal(t, "next-cycle", b.CycleID)
	assert.True(t, b.TaskScheduled)
}

func TestAddTagsToBatchUnionsAndSchedulesOnce(t *testing.T) {
	ctx := context.Background()
	agg, store, sched := newTestAggregator()

	require.NoError(t, agg.AddTagsToBatch(ctx, "p", "tagger", []string{"b", "a", "tagger"}))
	require.NoError(t, agg.AddTagsToBatch(ctx, "p", "tagger", []string{"a", "c"}))

	snap, err := store.Get(ctx, models.TagBatchesCollection, "p_tagger")
	require.NoError(t, err)
	var b models.TagBatch
	require.NoError(t, snap.DataTo(&b))
	assert.Equal(t, []string{"a", "b", "c"}, b.TaggedUserIDs)
	require.Equal(t, 1, sched.count())
	assert.Equal(t, scheduler.TagBatchPath, sched.tasks[0].Path)
}

func TestAddTagsToBatchCaps(t *testing.T) {
	ctx := context.Background()
	agg, store, _ := newTestAggregator()

	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%02d", i)
	}
	require.NoError(t, agg.AddTagsToBatch(ctx, "p", "t", ids))

	snap, err := store.Get(ctx, models.TagBatchesCollection, "p_t")
	require.NoError(t, err)
	var b models.TagBatch
	require.NoError(t, snap.DataTo(&b))
	assert.Len(t, b.TaggedUserIDs, MaxTagsPerBatch)
}
