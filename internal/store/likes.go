package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feedsync/feedsync/internal/model"
)

const likeColumns = `id, post_id, user_email, is_synced, deleted_at, updated_at`

const sqlGetActiveLike = `SELECT ` + likeColumns + `
	FROM likes WHERE post_id = ? AND user_email = ? AND deleted_at IS NULL`

const sqlGetLike = `SELECT ` + likeColumns + ` FROM likes WHERE id = ?`

const sqlUpsertLike = `INSERT INTO likes (` + likeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		post_id    = excluded.post_id,
		user_email = excluded.user_email,
		is_synced  = excluded.is_synced,
		deleted_at = excluded.deleted_at,
		updated_at = excluded.updated_at`

const sqlListUnsyncedLikes = `SELECT ` + likeColumns + ` FROM likes WHERE is_synced = 0`

const sqlMarkLikeSynced = `UPDATE likes SET is_synced = 1 WHERE id = ?`

const sqlDeleteOrphanLikes = `DELETE FROM likes WHERE post_id NOT IN (SELECT id FROM posts)`

const sqlListTombstonedSyncedLikes = `SELECT ` + likeColumns + `
	FROM likes WHERE deleted_at IS NOT NULL AND is_synced = 1 AND deleted_at < ?`

const sqlDeleteLike = `DELETE FROM likes WHERE id = ?`

func scanLike(row interface{ Scan(...any) error }) (*model.Like, error) {
	l := &model.Like{}

	if err := row.Scan(&l.ID, &l.PostID, &l.UserEmail, &l.IsSynced, &l.DeletedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}

	return l, nil
}

func scanLikeRows(rows *sql.Rows) ([]*model.Like, error) {
	var likes []*model.Like

	for rows.Next() {
		l, err := scanLike(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan like row: %w", err)
		}

		likes = append(likes, l)
	}

	return likes, rows.Err()
}

func likeArgs(l *model.Like) []any {
	return []any{l.ID, l.PostID, l.UserEmail, l.IsSynced, l.DeletedAt, l.UpdatedAt}
}

// GetActiveLike returns the non-tombstoned like for (postID, userEmail), or
// (nil, nil) if none exists — used by the toggle operation (§4.D.2, invariant 6)
// to decide between resurrecting a tombstone and creating a new row.
func (s *Store) GetActiveLike(ctx context.Context, tx *sql.Tx, postID, userEmail string) (*model.Like, error) {
	l, err := scanLike(tx.QueryRowContext(ctx, sqlGetActiveLike, postID, userEmail))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get active like %s/%s: %w", postID, userEmail, err)
	}

	return l, nil
}

// GetLikeTx retrieves a single like by ID within an open transaction, or
// (nil, nil) if it does not exist.
func (s *Store) GetLikeTx(ctx context.Context, tx *sql.Tx, id string) (*model.Like, error) {
	l, err := scanLike(tx.QueryRowContext(ctx, sqlGetLike, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get like %s: %w", id, err)
	}

	return l, nil
}

// UpsertLike inserts or updates a like row.
func (s *Store) UpsertLike(ctx context.Context, tx *sql.Tx, l *model.Like) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertLike, likeArgs(l)...); err != nil {
		return fmt.Errorf("store: upsert like %s: %w", l.ID, err)
	}

	return nil
}

// ListUnsyncedLikes returns all likes with IsSynced = false.
func (s *Store) ListUnsyncedLikes(ctx context.Context) ([]*model.Like, error) {
	rows, err := s.db.QueryContext(ctx, sqlListUnsyncedLikes)
	if err != nil {
		return nil, fmt.Errorf("store: list unsynced likes: %w", err)
	}
	defer rows.Close()

	return scanLikeRows(rows)
}

// MarkLikesSynced flips IsSynced to true for every id in ids, in one
// transaction — used after a batch upsert succeeds (§4.D.2).
func (s *Store) MarkLikesSynced(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, sqlMarkLikeSynced, id); err != nil {
			return fmt.Errorf("store: mark like synced %s: %w", id, err)
		}
	}

	return nil
}

// DeleteOrphanLikes removes likes whose PostID no longer matches an existing
// local post (§4.F.3).
func (s *Store) DeleteOrphanLikes(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, sqlDeleteOrphanLikes)
	if err != nil {
		return 0, fmt.Errorf("store: delete orphan likes: %w", err)
	}

	return res.RowsAffected()
}

// ListTombstonedSyncedLikesBefore returns synced likes tombstoned before cutoff.
func (s *Store) ListTombstonedSyncedLikesBefore(ctx context.Context, tx *sql.Tx, cutoff int64) ([]*model.Like, error) {
	rows, err := tx.QueryContext(ctx, sqlListTombstonedSyncedLikes, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list tombstoned synced likes: %w", err)
	}
	defer rows.Close()

	return scanLikeRows(rows)
}

// DeleteLike hard-deletes a like row by ID.
func (s *Store) DeleteLike(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteLike, id); err != nil {
		return fmt.Errorf("store: delete like %s: %w", id, err)
	}

	return nil
}
