package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
)

// UserRepository reads recipient profiles and maintains push tokens.
type UserRepository interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
	// ClearPushToken removes the stored token when it still equals token, or
	// unconditionally when token is empty. It reports whether it cleared.
	ClearPushToken(ctx context.Context, uid, token string) (bool, error)
}

type docstoreUserRepository struct {
	store docstore.Store
}

func NewUserRepository(store docstore.Store) UserRepository {
	return &docstoreUserRepository{store: store}
}

func (r *docstoreUserRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	snap, err := r.store.Get(ctx, models.UsersCollection, uid)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *docstoreUserRepository) ClearPushToken(ctx context.Context, uid, token string) (bool, error) {
	cleared := false
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cleared = false
		snap, err := tx.Get(models.UsersCollection, uid)
		if err != nil {
			return err
		}
		var user models.User
		if err := snap.DataTo(&user); err != nil {
			return err
		}
		if user.PushToken == "" || (token != "" && user.PushToken != token) {
			return nil
		}
		cleared = true
		return tx.Update(models.UsersCollection, uid, map[string]interface{}{"pushToken": nil})
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return cleared, err
}
