package repositories

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
)

// StoredReceipt is a pending receipt together with its ticket id.
type StoredReceipt struct {
	TicketID string
	models.PendingReceipt
}

// ReceiptRepository persists push tickets awaiting a delivery receipt.
type ReceiptRepository interface {
	Save(ctx context.Context, ticketID string, receipt models.PendingReceipt) error
	List(ctx context.Context) ([]StoredReceipt, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]StoredReceipt, error)
	DeleteMany(ctx context.Context, ticketIDs []string) (int, error)
}

type docstoreReceiptRepository struct {
	store docstore.Store
}

func NewReceiptRepository(store docstore.Store) ReceiptRepository {
	return &docstoreReceiptRepository{store: store}
}

func (r *docstoreReceiptRepository) Save(ctx context.Context, ticketID string, receipt models.PendingReceipt) error {
	return r.store.Set(ctx, models.PendingReceiptsCollection, ticketID, receipt)
}

func (r *docstoreReceiptRepository) List(ctx context.Context) ([]StoredReceipt, error) {
	return r.query(ctx, docstore.Query{})
}

func (r *docstoreReceiptRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]StoredReceipt, error) {
	return r.query(ctx, docstore.Where("createdAt", docstore.OpLess, cutoff))
}

func (r *docstoreReceiptRepository) query(ctx context.Context, q docstore.Query) ([]StoredReceipt, error) {
	snaps, err := r.store.Query(ctx, models.PendingReceiptsCollection, q)
	if err != nil {
		return nil, err
	}
	out := make([]StoredReceipt, 0, len(snaps))
	for _, snap := range snaps {
		var pr models.PendingReceipt
		if err := snap.DataTo(&pr); err != nil {
			return nil, err
		}
		out = append(out, StoredReceipt{TicketID: snap.ID(), PendingReceipt: pr})
	}
	return out, nil
}

func (r *docstoreReceiptRepository) DeleteMany(ctx context.Context, ticketIDs []string) (int, error) {
	return docstore.DeleteAll(ctx, r.store, models.PendingReceiptsCollection, ticketIDs)
}
