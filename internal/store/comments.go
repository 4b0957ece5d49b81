package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feedsync/feedsync/internal/model"
)

const commentColumns = `id, post_id, user_email, text, timestamp, is_synced, deleted_at, updated_at, synced_text`

const sqlGetComment = `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`

const sqlUpsertComment = `INSERT INTO comments (` + commentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		post_id     = excluded.post_id,
		user_email  = excluded.user_email,
		text        = excluded.text,
		timestamp   = excluded.timestamp,
		is_synced   = excluded.is_synced,
		deleted_at  = excluded.deleted_at,
		updated_at  = excluded.updated_at,
		synced_text = excluded.synced_text`

const sqlListUnsyncedComments = `SELECT ` + commentColumns + ` FROM comments WHERE is_synced = 0`

const sqlListConflictedComments = `SELECT ` + commentColumns + `
	FROM comments WHERE is_synced = 0 AND updated_at != 0`

// sqlMarkCommentSynced advances the synced_text baseline alongside is_synced;
// see sqlMarkPostSynced.
const sqlMarkCommentSynced = `UPDATE comments SET is_synced = 1, synced_text = text WHERE id = ?`

const sqlDeleteOrphanComments = `DELETE FROM comments WHERE post_id NOT IN (SELECT id FROM posts)`

const sqlListTombstonedSyncedComments = `SELECT ` + commentColumns + `
	FROM comments WHERE deleted_at IS NOT NULL AND is_synced = 1 AND deleted_at < ?`

const sqlDeleteComment = `DELETE FROM comments WHERE id = ?`

func scanComment(row interface{ Scan(...any) error }) (*model.Comment, error) {
	c := &model.Comment{}

	if err := row.Scan(
		&c.ID, &c.PostID, &c.UserEmail, &c.Text, &c.Timestamp, &c.IsSynced, &c.DeletedAt, &c.UpdatedAt,
		&c.SyncedText,
	); err != nil {
		return nil, err
	}

	return c, nil
}

func scanCommentRows(rows *sql.Rows) ([]*model.Comment, error) {
	var comments []*model.Comment

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan comment row: %w", err)
		}

		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func commentArgs(c *model.Comment) []any {
	return []any{c.ID, c.PostID, c.UserEmail, c.Text, c.Timestamp, c.IsSynced, c.DeletedAt, c.UpdatedAt, c.SyncedText}
}

// GetCommentTx retrieves a single comment by ID within an open transaction,
// or (nil, nil) if it does not exist.
func (s *Store) GetCommentTx(ctx context.Context, tx *sql.Tx, id string) (*model.Comment, error) {
	c, err := scanComment(tx.QueryRowContext(ctx, sqlGetComment, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get comment %s: %w", id, err)
	}

	return c, nil
}

// UpsertComment inserts or updates a comment row.
func (s *Store) UpsertComment(ctx context.Context, tx *sql.Tx, c *model.Comment) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertComment, commentArgs(c)...); err != nil {
		return fmt.Errorf("store: upsert comment %s: %w", c.ID, err)
	}

	return nil
}

// ListUnsyncedComments returns all comments with IsSynced = false.
func (s *Store) ListUnsyncedComments(ctx context.Context) ([]*model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, sqlListUnsyncedComments)
	if err != nil {
		return nil, fmt.Errorf("store: list unsynced comments: %w", err)
	}
	defer rows.Close()

	return scanCommentRows(rows)
}

// MarkCommentsSynced flips IsSynced to true for every id in ids.
func (s *Store) MarkCommentsSynced(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, sqlMarkCommentSynced, id); err != nil {
			return fmt.Errorf("store: mark comment synced %s: %w", id, err)
		}
	}

	return nil
}

// ListConflictedComments returns unsynced comments with a nonzero UpdatedAt
// (already merged by a pull), mirroring ListConflictedPosts.
func (s *Store) ListConflictedComments(ctx context.Context) ([]*model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, sqlListConflictedComments)
	if err != nil {
		return nil, fmt.Errorf("store: list conflicted comments: %w", err)
	}
	defer rows.Close()

	return scanCommentRows(rows)
}

// DeleteOrphanComments removes comments whose PostID no longer matches an
// existing local post (§4.F.3).
func (s *Store) DeleteOrphanComments(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, sqlDeleteOrphanComments)
	if err != nil {
		return 0, fmt.Errorf("store: delete orphan comments: %w", err)
	}

	return res.RowsAffected()
}

// ListTombstonedSyncedCommentsBefore returns synced comments tombstoned before cutoff.
func (s *Store) ListTombstonedSyncedCommentsBefore(ctx context.Context, tx *sql.Tx, cutoff int64) ([]*model.Comment, error) {
	rows, err := tx.QueryContext(ctx, sqlListTombstonedSyncedComments, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list tombstoned synced comments: %w", err)
	}
	defer rows.Close()

	return scanCommentRows(rows)
}

// DeleteComment hard-deletes a comment row by ID.
func (s *Store) DeleteComment(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteComment, id); err != nil {
		return fmt.Errorf("store: delete comment %s: %w", id, err)
	}

	return nil
}
