package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/feedsync/feedsync/internal/model"
)

// ToggleLike flips a user's like on a post: if an active like exists it is
// tombstoned; if a tombstoned like exists for the same pair it is resurrected
// in place (no new row); otherwise a new like is created active. This is the
// one operation that enforces invariant 6 (at-most-one-active-like) without
// relying on the UNIQUE partial index alone, since a second toggle before a
// push must resurrect the same row rather than attempt a second insert (S2).
//
// Every branch clears IsSynced, per invariant 2.
func (s *Store) ToggleLike(ctx context.Context, postID, userEmail string) (*model.Like, error) {
	var result *model.Like

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		active, err := s.GetActiveLike(ctx, tx, postID, userEmail)
		if err != nil {
			return err
		}

		now := model.NowNano()

		if active != nil {
			active.DeletedAt = model.Int64Ptr(now)
			active.IsSynced = false

			if err := s.UpsertLike(ctx, tx, active); err != nil {
				return err
			}

			result = active

			return nil
		}

		tombstoned, err := s.findTombstonedLike(ctx, tx, postID, userEmail)
		if err != nil {
			return err
		}

		if tombstoned != nil {
			tombstoned.DeletedAt = nil
			tombstoned.IsSynced = false

			if err := s.UpsertLike(ctx, tx, tombstoned); err != nil {
				return err
			}

			result = tombstoned

			return nil
		}

		created := &model.Like{
			ID:        uuid.NewString(),
			PostID:    postID,
			UserEmail: userEmail,
			IsSynced:  false,
		}

		if err := s.UpsertLike(ctx, tx, created); err != nil {
			return err
		}

		result = created

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: toggle like %s/%s: %w", postID, userEmail, err)
	}

	s.feed.Publish(EntityLike)

	return result, nil
}

const sqlFindTombstonedLike = `SELECT ` + likeColumns + `
	FROM likes WHERE post_id = ? AND user_email = ? AND deleted_at IS NOT NULL
	ORDER BY updated_at DESC LIMIT 1`

func (s *Store) findTombstonedLike(ctx context.Context, tx *sql.Tx, postID, userEmail string) (*model.Like, error) {
	l, err := scanLike(tx.QueryRowContext(ctx, sqlFindTombstonedLike, postID, userEmail))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: find tombstoned like %s/%s: %w", postID, userEmail, err)
	}

	return l, nil
}
