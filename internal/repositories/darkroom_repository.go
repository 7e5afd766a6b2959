package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
)

// DarkroomRepository tracks per-user reveal schedules.
type DarkroomRepository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	MarkRevealed(ctx context.Context, uid string, revealedAt, next time.Time, count int) error
	// ClaimRevealNotification advances lastNotifiedAt when the last reveal
	// has not been announced. Only the caller that gets true may notify.
	ClaimRevealNotification(ctx context.Context, uid string, now time.Time) (bool, *models.Darkroom, error)
}

type docstoreDarkroomRepository struct {
	store docstore.Store
}

func NewDarkroomRepository(store docstore.Store) DarkroomRepository {
	return &docstoreDarkroomRepository{store: store}
}

func (r *docstoreDarkroomRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	snaps, err := r.store.Query(ctx, models.DarkroomsCollection, docstore.Query{
		Filters: []docstore.Filter{{Field: "nextRevealAt", Op: docstore.OpLessEqual, Value: now}},
		OrderBy: "nextRevealAt",
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	return docstore.IDs(snaps), nil
}

func (r *docstoreDarkroomRepository) MarkRevealed(ctx context.Context, uid string, revealedAt, next time.Time, count int) error {
	fields := map[string]interface{}{"nextRevealAt": next}
	if count > 0 {
		fields["lastRevealedAt"] = revealedAt
		fields["revealedCount"] = count
	}
	return r.store.Update(ctx, models.DarkroomsCollection, uid, fields)
}

func (r *docstoreDarkroomRepository) ClaimRevealNotification(ctx context.Context, uid string, now time.Time) (bool, *models.Darkroom, error) {
	var (
		claimed bool
		room    models.Darkroom
	)
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		claimed = false
		snap, err := tx.Get(models.DarkroomsCollection, uid)
		if err != nil {
			return err
		}
		room = models.Darkroom{}
		if err := snap.DataTo(&room); err != nil {
			return err
		}
		if !room.NeedsRevealNotification() {
			return nil
		}
		claimed = true
		return tx.Update(models.DarkroomsCollection, uid, map[string]interface{}{"lastNotifiedAt": now})
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return claimed, &room, nil
}
