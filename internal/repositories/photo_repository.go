package repositories

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
)

// PhotoRepository reads photos and develops them out of the darkroom.
type PhotoRepository interface {
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	// RevealDeveloping flips every developing photo of userID to revealed and
	// returns how many changed.
	RevealDeveloping(ctx context.Context, userID string, now time.Time) (int, error)
}

type docstorePhotoRepository struct {
	store docstore.Store
}

func NewPhotoRepository(store docstore.Store) PhotoRepository {
	return &docstorePhotoRepository{store: store}
}

func (r *docstorePhotoRepository) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	snap, err := r.store.Get(ctx, models.PhotosCollection, id)
	if err != nil {
		return nil, err
	}
	var photo models.Photo
	if err := snap.DataTo(&photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

func (r *docstorePhotoRepository) RevealDeveloping(ctx context.Context, userID string, now time.Time) (int, error) {
	snaps, err := r.store.Query(ctx, models.PhotosCollection, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "userId", Op: docstore.OpEqual, Value: userID},
			{Field: "status", Op: docstore.OpEqual, Value: string(models.PhotoDeveloping)},
		},
	})
	if err != nil {
		return 0, err
	}

	revealed := 0
	for start := 0; start < len(snaps); start += docstore.MaxBatchWrites {
		end := start + docstore.MaxBatchWrites
		if end > len(snaps) {
			end = len(snaps)
		}
		batch := r.store.Batch()
		for _, snap := range snaps[start:end] {
			batch.Update(models.PhotosCollection, snap.ID(), map[string]interface{}{
				"status":     string(models.PhotoRevealed),
				"revealedAt": now,
			})
		}
		if err := batch.Commit(ctx); err != nil {
			return revealed, err
		}
		revealed += end - start
	}
	return revealed, nil
}
