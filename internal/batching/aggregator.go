// Package batching collapses bursts of reaction and tag events into one
// pending batch document per (photo, actor) pair and schedules a single
// delayed dispatch per batch cycle.
package batching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultDelay is the debounce window before a batch is dispatched.
const DefaultDelay = 30 * time.Second

// MaxTagsPerBatch caps how many users one tag batch may notify.
const MaxTagsPerBatch = 20

var ErrInvalidKey = errors.New("photo id and actor id are required")

// TaskScheduler enqueues the delayed dispatcher callback.
type TaskScheduler interface {
	ScheduleNotificationTask(ctx context.Context, task scheduler.CallbackTask, delay time.Duration) error
}

type Aggregator struct {
	store     docstore.Store
	scheduler TaskScheduler
	delay     time.Duration
	now       func() time.Time
	newCycle  func() string
}

func NewAggregator(store docstore.Store, sched TaskScheduler, delay time.Duration) *Aggregator {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Aggregator{
		store:     store,
		scheduler: sched,
		delay:     delay,
		now:       time.Now,
		newCycle:  uuid.NewString,
	}
}

// AddReactionToBatch merges diff into the pending batch for (photoID,
// reactorID), starting a new cycle when the previous one is already being
// delivered or done. Non-positive counts are ignored.
func (a *Aggregator) AddReactionToBatch(ctx context.Context, photoID, reactorID string, diff map[string]int) error {
	if photoID == "" || reactorID == "" {
		return ErrInvalidKey
	}
	diff = positiveCounts(diff)
	if len(diff) == 0 {
		return nil
	}

	id := models.BatchID(photoID, reactorID)
	var needsSchedule bool
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		needsSchedule = false
		now := a.now()

		fresh := func() error {
			needsSchedule = true
			return tx.Set(models.ReactionBatchesCollection, id, models.ReactionBatch{
				PhotoID:   photoID,
				ReactorID: reactorID,
				Reactions: diff,
				Status:    models.BatchPending,
				CycleID:   a.newCycle(),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		snap, err := tx.Get(models.ReactionBatchesCollection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return fresh()
		}
		if err != nil {
			return err
		}
		var batch models.ReactionBatch
		if err := snap.DataTo(&batch); err != nil {
			return err
		}
		if batch.Status != models.BatchPending {
			return fresh()
		}

		needsSchedule = !batch.TaskScheduled
		return tx.Update(models.ReactionBatchesCollection, id, map[string]interface{}{
			"reactions": mergeCounts(batch.Reactions, diff),
			"updatedAt": now,
		})
	})
	if err != nil {
		return fmt.Errorf("merge reaction batch %s: %w", id, err)
	}

	if !needsSchedule {
		return nil
	}
	return a.claimAndSchedule(ctx, models.ReactionBatchesCollection, id, scheduler.ReactionBatchPath)
}

// AddTagsToBatch unions taggedIDs into the pending tag batch for (photoID,
// taggerID) with the same cycle rules as reactions. The tagger is never
// added, and a batch holds at most MaxTagsPerBatch users.
func (a *Aggregator) AddTagsToBatch(ctx context.Context, photoID, taggerID string, taggedIDs []string) error {
	if photoID == "" || taggerID == "" {
		return ErrInvalidKey
	}
	taggedIDs = unionIDs(nil, taggedIDs, taggerID)
	if len(taggedIDs) == 0 {
		return nil
	}

	id := models.BatchID(photoID, taggerID)
	var needsSchedule bool
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		needsSchedule = false
		now := a.now()

		fresh := func() error {
			needsSchedule = true
			return tx.Set(models.TagBatchesCollection, id, models.TagBatch{
				PhotoID:       photoID,
				TaggerID:      taggerID,
				TaggedUserIDs: taggedIDs,
				Status:        models.BatchPending,
				CycleID:       a.newCycle(),
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}

		snap, err := tx.Get(models.TagBatchesCollection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return fresh()
		}
		if err != nil {
			return err
		}
		var batch models.TagBatch
		if err := snap.DataTo(&batch); err != nil {
			return err
		}
		if batch.Status != models.BatchPending {
			return fresh()
		}

		needsSchedule = !batch.TaskScheduled
		return tx.Update(models.TagBatchesCollection, id, map[string]interface{}{
			"taggedUserIds": unionIDs(batch.TaggedUserIDs, taggedIDs, taggerID),
			"updatedAt":     now,
		})
	})
	if err != nil {
		return fmt.Errorf("merge tag batch %s: %w", id, err)
	}

	if !needsSchedule {
		return nil
	}
	return a.claimAndSchedule(ctx, models.TagBatchesCollection, id, scheduler.TagBatchPath)
}

// claimAndSchedule flips taskScheduled false->true in its own transaction.
// Only the invocation that performs the flip enqueues the callback, so
// concurrent creators schedule exactly once per cycle.
func (a *Aggregator) claimAndSchedule(ctx context.Context, collection, id, path string) error {
	var (
		owner bool
		cycle string
	)
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		owner = false
		snap, err := tx.Get(collection, id)
		if err != nil {
			return err
		}
		var head models.BatchHead
		if err := snap.DataTo(&head); err != nil {
			return err
		}
		if head.TaskScheduled || head.Status != models.BatchPending {
			return nil
		}
		owner = true
		cycle = head.CycleID
		return tx.Update(collection, id, map[string]interface{}{"taskScheduled": true})
	})
	if err != nil {
		return fmt.Errorf("claim scheduling for %s: %w", id, err)
	}
	if !owner {
		return nil
	}

	task := scheduler.CallbackTask{Path: path, BatchID: id, CycleID: cycle}
	if err := a.scheduler.ScheduleNotificationTask(ctx, task, a.delay); err != nil {
		// Release the claim so the next event for this batch retries scheduling.
		if rerr := a.release(ctx, collection, id, cycle); rerr != nil {
			logrus.WithError(rerr).WithField("batch_id", id).Error("failed to release scheduling claim")
		}
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	return nil
}

// release clears taskScheduled, but only while the batch is still the
// pending cycle that claimed it. A newer cycle owns its own flag.
func (a *Aggregator) release(ctx context.Context, collection, id, cycle string) error {
	return a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var head models.BatchHead
		if err := snap.DataTo(&head); err != nil {
			return err
		}
		if head.CycleID != cycle || head.Status != models.BatchPending {
			return nil
		}
		return tx.Update(collection, id, map[string]interface{}{"taskScheduled": false})
	})
}

func positiveCounts(diff map[string]int) map[string]int {
	out := make(map[string]int, len(diff))
	for emoji, n := range diff {
		if emoji != "" && n > 0 {
			out[emoji] = n
		}
	}
	return out
}

func mergeCounts(into, diff map[string]int) map[string]int {
	out := make(map[string]int, len(into)+len(diff))
	for emoji, n := range into {
		out[emoji] = n
	}
	for emoji, n := range diff {
		out[emoji] += n
	}
	return out
}

// unionIDs returns a followed by the ids of b not already present, sorted.
// Empty ids and skip are dropped and the result is capped at MaxTagsPerBatch.
func unionIDs(a, b []string, skip string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var kept, added []string
	for _, id := range a {
		if id != "" && id != skip && !seen[id] {
			seen[id] = true
			kept = append(kept, id)
		}
	}
	for _, id := range b {
		if id != "" && id != skip && !seen[id] {
			seen[id] = true
			added = append(added, id)
		}
	}
	sort.Strings(added)
	out := append(kept, added...)
	if len(out) > MaxTagsPerBatch {
		out = out[:MaxTagsPerBatch]
	}
	return out
}
