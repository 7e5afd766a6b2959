package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// Outcome is the terminal result of one dispatcher invocation.
type Outcome string

const (
	OutcomeNotFound    Outcome = "not_found"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeInProgress  Outcome = "in_progress"
	OutcomeSent        Outcome = "sent"
	OutcomeSkipped     Outcome = "skipped"
)

// Result is returned for every outcome that must not be retried.
type Result struct {
	Outcome   Outcome `json:"status"`
	Detail    string  `json:"detail,omitempty"`
	Delivered int     `json:"delivered,omitempty"`
}

// RetryableError reports a dispatch that failed after the batch was reset to
// pending. The caller should answer so the task queue tries again.
type RetryableError struct {
	BatchID string
	Err     error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.BatchID, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

type batchDoc interface {
	State() models.BatchStatus
	Cycle() string
}

// Dispatcher drives batches through pending -> processing -> sent. It is
// safe to invoke any number of times, concurrently, for the same batch.
type Dispatcher struct {
	store    docstore.Store
	photos   repositories.PhotoRepository
	profiles *ProfileResolver
	notifier *Notifier
	now      func() time.Time
}

func NewDispatcher(store docstore.Store, photos repositories.PhotoRepository, profiles *ProfileResolver, notifier *Notifier) *Dispatcher {
	return &Dispatcher{
		store:    store,
		photos:   photos,
		profiles: profiles,
		notifier: notifier,
		now:      time.Now,
	}
}

// HandleReactionBatch delivers one aggregated reaction notification to the
// photo's current owner.
func (d *Dispatcher) HandleReactionBatch(ctx context.Context, batchID string) (Result, error) {
	var batch models.ReactionBatch
	return d.handle(ctx, models.ReactionBatchesCollection, batchID, &batch, func(ctx context.Context) (Result, error) {
		return d.deliverReactions(ctx, &batch)
	})
}

// HandleTagBatch notifies every user in a tag batch. A failure for one
// recipient does not stop the others.
func (d *Dispatcher) HandleTagBatch(ctx context.Context, batchID string) (Result, error) {
	var batch models.TagBatch
	return d.handle(ctx, models.TagBatchesCollection, batchID, &batch, func(ctx context.Context) (Result, error) {
		return d.deliverTags(ctx, &batch)
	})
}

func (d *Dispatcher) handle(ctx context.Context, collection, batchID string, batch batchDoc, deliver func(ctx context.Context) (Result, error)) (Result, error) {
	log := logrus.WithFields(logrus.Fields{"collection": collection, "batch_id": batchID})

	outcome, err := d.claim(ctx, collection, batchID, batch)
	if err != nil {
		log.WithError(err).Error("failed to claim batch")
		return Result{}, &RetryableError{BatchID: batchID, Err: err}
	}
	if outcome != "" {
		log.WithField("outcome", outcome).Info("batch needs no dispatch")
		return Result{Outcome: outcome}, nil
	}

	cycle := batch.Cycle()
	log = log.WithField("cycle_id", cycle)

	res, err := deliver(ctx)
	if err == nil {
		err = d.finalize(ctx, collection, batchID, cycle, res.Detail)
	}
	if err != nil {
		log.WithError(err).Error("dispatch failed, resetting batch to pending")
		d.reset(ctx, collection, batchID, cycle, err)
		return Result{}, &RetryableError{BatchID: batchID, Err: err}
	}

	log.WithFields(logrus.Fields{"outcome": res.Outcome, "detail": res.Detail}).Info("batch dispatched")
	return res, nil
}

// claim moves a pending batch to processing and loads it into batch. A
// non-empty outcome means there is nothing to do.
func (d *Dispatcher) claim(ctx context.Context, collection, batchID string, batch batchDoc) (Outcome, error) {
	var outcome Outcome
	err := d.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		outcome = ""
		snap, err := tx.Get(collection, batchID)
		if errors.Is(err, docstore.ErrNotFound) {
			outcome = OutcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if err := snap.DataTo(batch); err != nil {
			return err
		}
		switch batch.State() {
		case models.BatchSent:
			outcome = OutcomeAlreadySent
			return nil
		case models.BatchProcessing:
			outcome = OutcomeInProgress
			return nil
		}
		return tx.Update(collection, batchID, map[string]interface{}{
			"status":    string(models.BatchProcessing),
			"claimedAt": d.now(),
		})
	})
	return outcome, err
}

// finalize marks the claimed cycle sent. When a newer cycle replaced the
// batch during delivery it is left alone; its own task delivers it.
func (d *Dispatcher) finalize(ctx context.Context, collection, batchID, cycle, annotation string) error {
	now := d.now()
	fields := map[string]interface{}{
		"status":    string(models.BatchSent),
		"sentAt":    now,
		"updatedAt": now,
	}
	if annotation != "" {
		fields["error"] = annotation
	}
	applied, err := d.updateClaimed(ctx, collection, batchID, cycle, fields)
	if err == nil && !applied {
		logrus.WithFields(logrus.Fields{"batch_id": batchID, "cycle_id": cycle}).
			Info("batch moved to a new cycle during dispatch")
	}
	return err
}

func (d *Dispatcher) reset(ctx context.Context, collection, batchID, cycle string, cause error) {
	_, err := d.updateClaimed(ctx, collection, batchID, cycle, map[string]interface{}{
		"status":    string(models.BatchPending),
		"updatedAt": d.now(),
		"error":     cause.Error(),
	})
	if err != nil {
		logrus.WithError(err).WithField("batch_id", batchID).Error("failed to reset batch to pending")
	}
}

// updateClaimed applies fields only while the batch is still the processing
// cycle this dispatcher claimed.
func (d *Dispatcher) updateClaimed(ctx context.Context, collection, batchID, cycle string, fields map[string]interface{}) (bool, error) {
	var applied bool
	err := d.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		applied = false
		snap, err := tx.Get(collection, batchID)
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
		if head.CycleID != cycle || head.Status != models.BatchProcessing {
			return nil
		}
		applied = true
		return tx.Update(collection, batchID, fields)
	})
	return applied, err
}

func (d *Dispatcher) loadPhoto(ctx context.Context, photoID string) (*models.Photo, string, error) {
	photo, err := d.photos.GetPhoto(ctx, photoID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, "photo not found", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load photo %s: %w", photoID, err)
	}
	return photo, "", nil
}

func (d *Dispatcher) deliverReactions(ctx context.Context, batch *models.ReactionBatch) (Result, error) {
	photo, missing, err := d.loadPhoto(ctx, batch.PhotoID)
	if err != nil {
		return Result{}, err
	}
	if photo == nil {
		return Result{Outcome: OutcomeSkipped, Detail: missing}, nil
	}

	summary := FormatReactionSummary(batch.Reactions)
	if summary == "" {
		return Result{Outcome: OutcomeSkipped, Detail: "no reactions"}, nil
	}

	sender := d.profiles.Lookup(ctx, batch.ReactorID)
	delivery, err := d.notifier.Notify(ctx, Note{
		RecipientID: photo.UserID,
		Type:        models.NotificationReaction,
		SenderID:    batch.ReactorID,
		Sender:      sender,
		PhotoID:     batch.PhotoID,
		Reactions:   batch.Reactions,
		Title:       "New reactions",
		Body:        fmt.Sprintf("%s reacted %s to your photo", sender.Name, summary),
	})
	if err != nil {
		return Result{}, err
	}
	if !delivery.Sent {
		return Result{Outcome: OutcomeSkipped, Detail: delivery.Reason}, nil
	}
	return Result{Outcome: OutcomeSent, Delivered: 1}, nil
}

func (d *Dispatcher) deliverTags(ctx context.Context, batch *models.TagBatch) (Result, error) {
	photo, missing, err := d.loadPhoto(ctx, batch.PhotoID)
	if err != nil {
		return Result{}, err
	}
	if photo == nil {
		return Result{Outcome: OutcomeSkipped, Detail: missing}, nil
	}

	sender := d.profiles.Lookup(ctx, batch.TaggerID)
	notes := make([]Note, len(batch.TaggedUserIDs))
	for i, uid := range batch.TaggedUserIDs {
		notes[i] = Note{
			RecipientID: uid,
			Type:        models.NotificationTagged,
			SenderID:    batch.TaggerID,
			Sender:      sender,
			PhotoID:     batch.PhotoID,
			Title:       "You were tagged",
			Body:        fmt.Sprintf("%s tagged you in a photo", sender.Name),
		}
	}

	delivered, failed := 0, 0
	for i, f := range d.notifier.NotifyAll(ctx, notes) {
		if f.Err != nil {
			failed++
			logrus.WithError(f.Err).WithFields(logrus.Fields{
				"photo_id":     batch.PhotoID,
				"recipient_id": notes[i].RecipientID,
			}).Error("tag notification failed")
			continue
		}
		if f.Sent {
			delivered++
		}
	}

	res := Result{Outcome: OutcomeSent, Delivered: delivered}
	if delivered == 0 {
		res.Outcome = OutcomeSkipped
	}
	if failed > 0 {
		res.Detail = fmt.Sprintf("%d of %d recipients failed", failed, len(batch.TaggedUserIDs))
	}
	return res, nil
}
