package repositories

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
)

// BatchRepository garbage-collects finished or abandoned batch documents.
type BatchRepository interface {
	// DeleteStale removes documents in collection whose updatedAt is older
	// than cutoff and returns how many were deleted.
	DeleteStale(ctx context.Context, collection string, cutoff time.Time) (int, error)
}

type docstoreBatchRepository struct {
	store docstore.Store
}

func NewBatchRepository(store docstore.Store) BatchRepository {
	return &docstoreBatchRepository{store: store}
}

func (r *docstoreBatchRepository) DeleteStale(ctx context.Context, collection string, cutoff time.Time) (int, error) {
	snaps, err := r.store.Query(ctx, collection, docstore.Where("updatedAt", docstore.OpLess, cutoff))
	if err != nil {
		return 0, err
	}
	return docstore.DeleteAll(ctx, r.store, collection, docstore.IDs(snaps))
}
