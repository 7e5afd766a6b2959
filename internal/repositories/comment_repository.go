package repositories

import (
	"context"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
)

// CommentRepository reads comments from the document store
type CommentRepository interface {
	GetComment(ctx context.Context, id string) (*models.Comment, error)
}

type docstoreCommentRepository struct {
	store docstore.Store
}

// NewCommentRepository creates a CommentRepository over store
func NewCommentRepository(store docstore.Store) CommentRepository {
	return &docstoreCommentRepository{store: store}
}

// GetComment retrieves a comment by ID
func (r *docstoreCommentRepository) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	snap, err := r.store.Get(ctx, models.CommentsCollection, id)
	if err != nil {
		return nil, err
	}
	var comment models.Comment
	if err := snap.DataTo(&comment); err != nil {
		return nil, err
	}
	return &comment, nil
}
