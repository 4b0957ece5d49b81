package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feedsync/feedsync/internal/model"
)

const postColumns = `id, text, media_type, local_uri, remote_url, thumbnail_url,
	user_email, timestamp, is_synced, deleted_at, updated_at, synced_text, synced_remote_url`

const sqlGetPost = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

const sqlUpsertPost = `INSERT INTO posts (` + postColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text              = excluded.text,
		media_type        = excluded.media_type,
		local_uri         = excluded.local_uri,
		remote_url        = excluded.remote_url,
		thumbnail_url     = excluded.thumbnail_url,
		user_email        = excluded.user_email,
		timestamp         = excluded.timestamp,
		is_synced         = excluded.is_synced,
		deleted_at        = excluded.deleted_at,
		updated_at        = excluded.updated_at,
		synced_text       = excluded.synced_text,
		synced_remote_url = excluded.synced_remote_url`

const sqlListUnsyncedPosts = `SELECT ` + postColumns + ` FROM posts WHERE is_synced = 0`

const sqlListConflictedPosts = `SELECT ` + postColumns + `
	FROM posts WHERE is_synced = 0 AND updated_at != 0`

const sqlSetPostRemoteURL = `UPDATE posts SET remote_url = ?, is_synced = 0 WHERE id = ?`

// sqlMarkPostSynced also advances the synced_text/synced_remote_url baseline
// to the row's current values, since synced now means "local matches the
// copy the remote just acknowledged" — the next pull merge diffs against
// this new baseline, not the one before this push (§4.E.3).
const sqlMarkPostSynced = `UPDATE posts SET is_synced = 1, synced_text = text, synced_remote_url = remote_url WHERE id = ?`

const sqlListActiveSyncedPosts = `SELECT ` + postColumns + `
	FROM posts WHERE deleted_at IS NULL AND is_synced = 1
	ORDER BY timestamp ASC`

const sqlDeletePost = `DELETE FROM posts WHERE id = ?`

const sqlCountActiveSyncedPosts = `SELECT COUNT(*) FROM posts WHERE deleted_at IS NULL AND is_synced = 1`

const sqlListTombstonedSyncedPosts = `SELECT ` + postColumns + `
	FROM posts WHERE deleted_at IS NOT NULL AND is_synced = 1 AND deleted_at < ?`

func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	p := &model.Post{}

	var mediaType string

	err := row.Scan(
		&p.ID, &p.Text, &mediaType, &p.LocalURI, &p.RemoteURL, &p.ThumbnailURL,
		&p.UserEmail, &p.Timestamp, &p.IsSynced, &p.DeletedAt, &p.UpdatedAt,
		&p.SyncedText, &p.SyncedRemoteURL,
	)
	if err != nil {
		return nil, err
	}

	p.MediaType = model.MediaType(mediaType)

	return p, nil
}

func scanPostRows(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post

	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan post row: %w", err)
		}

		posts = append(posts, p)
	}

	return posts, rows.Err()
}

func postArgs(p *model.Post) []any {
	return []any{
		p.ID, p.Text, string(p.MediaType), p.LocalURI, p.RemoteURL, p.ThumbnailURL,
		p.UserEmail, p.Timestamp, p.IsSynced, p.DeletedAt, p.UpdatedAt,
		p.SyncedText, p.SyncedRemoteURL,
	}
}

// GetPost retrieves a single post by ID, or (nil, nil) if it does not exist.
func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, sqlGetPost, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get post %s: %w", id, err)
	}

	return p, nil
}

// GetPostTx retrieves a single post by ID within an open transaction, or
// (nil, nil) if it does not exist. Used by the pull merge, which must read
// and write the same row inside one transaction (§4.E.3).
func (s *Store) GetPostTx(ctx context.Context, tx *sql.Tx, id string) (*model.Post, error) {
	p, err := scanPost(tx.QueryRowContext(ctx, sqlGetPost, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get post %s: %w", id, err)
	}

	return p, nil
}

// UpsertPost inserts or updates a post. Callers creating or mutating a post
// must set IsSynced=false in the same call (invariant 2).
func (s *Store) UpsertPost(ctx context.Context, tx *sql.Tx, p *model.Post) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertPost, postArgs(p)...); err != nil {
		return fmt.Errorf("store: upsert post %s: %w", p.ID, err)
	}

	return nil
}

// ListUnsyncedPosts returns all posts with IsSynced = false, in no particular
// order — the push pipeline is free to process them in any order (§4.D.1).
func (s *Store) ListUnsyncedPosts(ctx context.Context) ([]*model.Post, error) {
	rows, err := s.db.QueryContext(ctx, sqlListUnsyncedPosts)
	if err != nil {
		return nil, fmt.Errorf("store: list unsynced posts: %w", err)
	}
	defer rows.Close()

	return scanPostRows(rows)
}

// ListConflictedPosts returns unsynced posts with a nonzero UpdatedAt, i.e.
// posts a pull has already merged from the remote and that have diverged
// locally since. UpdatedAt is only set locally by pull, so a post whose only
// sync so far was a push still has UpdatedAt 0 and is not listed. Backs the
// `feedsync conflicts` command.
func (s *Store) ListConflictedPosts(ctx context.Context) ([]*model.Post, error) {
	rows, err := s.db.QueryContext(ctx, sqlListConflictedPosts)
	if err != nil {
		return nil, fmt.Errorf("store: list conflicted posts: %w", err)
	}
	defer rows.Close()

	return scanPostRows(rows)
}

// SetPostRemoteURL records the uploaded media's public URL. Per invariant 2
// this also clears IsSynced, since the record now differs from the last
// acknowledged remote state until the metadata upsert that follows succeeds.
func (s *Store) SetPostRemoteURL(ctx context.Context, tx *sql.Tx, id, remoteURL string) error {
	if _, err := tx.ExecContext(ctx, sqlSetPostRemoteURL, remoteURL, id); err != nil {
		return fmt.Errorf("store: set post remote_url %s: %w", id, err)
	}

	return nil
}

// MarkPostSynced flips IsSynced to true after a successful remote upsert.
func (s *Store) MarkPostSynced(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, sqlMarkPostSynced, id); err != nil {
		return fmt.Errorf("store: mark post synced %s: %w", id, err)
	}

	return nil
}

// ListActiveSyncedPosts returns non-tombstoned, synced posts ordered oldest
// first — the order the size-cap prune step reaps from (§4.F.2).
func (s *Store) ListActiveSyncedPosts(ctx context.Context, tx *sql.Tx) ([]*model.Post, error) {
	rows, err := tx.QueryContext(ctx, sqlListActiveSyncedPosts)
	if err != nil {
		return nil, fmt.Errorf("store: list active synced posts: %w", err)
	}
	defer rows.Close()

	return scanPostRows(rows)
}

// ListTombstonedSyncedPostsBefore returns synced posts tombstoned before cutoff
// (Unix nanoseconds), the retention-GC candidate set (§4.F.1).
func (s *Store) ListTombstonedSyncedPostsBefore(ctx context.Context, tx *sql.Tx, cutoff int64) ([]*model.Post, error) {
	rows, err := tx.QueryContext(ctx, sqlListTombstonedSyncedPosts, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list tombstoned synced posts: %w", err)
	}
	defer rows.Close()

	return scanPostRows(rows)
}

// CountActiveSyncedPosts returns the number of non-tombstoned, synced posts.
func (s *Store) CountActiveSyncedPosts(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, sqlCountActiveSyncedPosts).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count active synced posts: %w", err)
	}

	return n, nil
}

// DeletePost hard-deletes a post row by ID.
func (s *Store) DeletePost(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, sqlDeletePost, id); err != nil {
		return fmt.Errorf("store: delete post %s: %w", id, err)
	}

	return nil
}
